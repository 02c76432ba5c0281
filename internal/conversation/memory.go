package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs tests and the
// `serve -memory` mode where no database is available.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*Conversation),
		now:   time.Now,
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, conv *Conversation) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := conv.Clone()
	stored.ID = uuid.NewString()
	stored.LastModified = s.now()
	s.convs[stored.ID] = stored
	return stored.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, conv *Conversation) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conv.ID]; !ok {
		return nil, ErrNotFound
	}
	stored := conv.Clone()
	stored.LastModified = s.now()
	s.convs[stored.ID] = stored
	return stored.Clone(), nil
}

// FindByID implements Store.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// ListByOwner implements Store.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Conversation
	for _, conv := range s.convs {
		if conv.OwnerID == ownerID {
			out = append(out, conv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}
