package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/testutil"
)

const docAnswer = "The paper proposes self-attention.\nSupporting Statements\n" +
	"We propose a new architecture. (page 2)"

func newDocMock() *testutil.MockLLM {
	mock := testutil.NewMockLLM("unexpected")
	mock.AddResponse("suggest a name", "Attention basics")
	mock.AddResponse("answer the new question", docAnswer)
	mock.AddResponse("three concise follow-up questions",
		"1. What is the goal of this paper?\n2. What methods are used?\n3. What are the key results?")
	return mock
}

func TestDocTurn_InlineText(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, newDocMock())

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/papers/p1/messages",
		"user-1", `{"title":"Paper One","text":"full text here","message":"What does this paper propose?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp docTurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.State != "idle" {
		t.Errorf("state = %q", resp.State)
	}
	if resp.Conversation.Kind != "p1" {
		t.Errorf("kind = %q", resp.Conversation.Kind)
	}
	if resp.Conversation.Name != "Attention basics" {
		t.Errorf("name = %q", resp.Conversation.Name)
	}
	if len(resp.Questions) != 3 {
		t.Errorf("questions = %v", resp.Questions)
	}
	if !strings.Contains(resp.Conversation.Messages[1].Text, "Supporting Statements") {
		t.Errorf("answer = %q", resp.Conversation.Messages[1].Text)
	}

	stored, err := store.FindByID(t.Context(), resp.Conversation.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Errorf("persisted messages = %d", len(stored.Messages))
	}
}

func TestDocTurn_ResolvesMissingText(t *testing.T) {
	t.Parallel()

	mock := newDocMock()
	srv, _ := newTestServer(t, mock)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/papers/p2/messages",
		"user-1", `{"message":"What does this paper propose?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp docTurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	// Title comes from the resolved paper when the request omits it.
	if resp.Conversation.Kind != "p2" {
		t.Errorf("kind = %q", resp.Conversation.Kind)
	}

	// The resolved full text must have reached the model.
	found := false
	for _, call := range mock.Calls() {
		last := call.Request.Messages[len(call.Request.Messages)-1]
		if strings.Contains(last.Content, "text two") {
			found = true
			break
		}
	}
	if !found {
		t.Error("resolved paper text never reached the model")
	}
}

func TestDocTurn_Validation(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, newDocMock())
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/papers/p1/messages", "", `{"message":"Hi"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing user: status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/papers/p1/messages", "user-1", `{"message":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty message: status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/papers/p1/messages", "user-1", `{"message"`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", w.Code)
	}
}

func TestDocTurn_WrongOwner(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, newDocMock())

	conv, err := store.Create(t.Context(), &conversation.Conversation{
		OwnerID: "user-1",
		Kind:    "p1",
		Name:    "Attention basics",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/papers/p1/messages",
		"user-2", `{"conversationId":"`+conv.ID+`","text":"full text","message":"Hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
