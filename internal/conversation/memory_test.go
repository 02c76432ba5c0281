package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, &Conversation{
		OwnerID:  "user-1",
		Kind:     KindGeneral,
		Name:     "transformer survey",
		Messages: []Message{{Text: "hi", Sender: SenderUser}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("Create did not assign an ID")
	}
	if created.LastModified.IsZero() {
		t.Error("Create did not set LastModified")
	}

	found, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Name != "transformer survey" {
		t.Errorf("FindByID name = %q", found.Name)
	}

	found.Messages = append(found.Messages, Message{Text: "answer", Sender: SenderBot})
	updated, err := store.Update(ctx, found)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Errorf("Update messages = %d, want 2", len(updated.Messages))
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.FindByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after delete = %v, want ErrNotFound", err)
	}

	// Deleting again is not an error.
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Errorf("repeated Delete: %v", err)
	}
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, err := store.Update(context.Background(), &Conversation{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	// Deterministic clock so ordering is stable.
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	first, err := store.Create(ctx, &Conversation{OwnerID: "user-1", Name: "first"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, &Conversation{OwnerID: "user-1", Name: "second"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, &Conversation{OwnerID: "user-2", Name: "other owner"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Touching the first conversation moves it to the top.
	if _, err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := store.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByOwner = %d conversations, want 2", len(list))
	}
	if list[0].Name != "first" || list[1].Name != "second" {
		t.Errorf("ListByOwner order = [%s, %s], want most recently modified first",
			list[0].Name, list[1].Name)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, &Conversation{
		OwnerID:  "user-1",
		Messages: []Message{{Text: "original", Sender: SenderUser}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating a returned copy must not affect the stored conversation.
	created.Messages[0].Text = "mutated"

	found, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Messages[0].Text != "original" {
		t.Error("store handed out a shared message slice")
	}
}
