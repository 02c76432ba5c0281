package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/llm"
)

func TestSynthesizerChitChat(t *testing.T) {
	t.Parallel()

	stub := &scriptedLLM{responses: []string{"Hi! How can I help you today?"}}
	s, err := NewSynthesizer(SynthesizerConfig{Client: stub})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	history := []conversation.Message{
		{Text: "hi", Sender: conversation.SenderUser},
		{Text: "Hello!", Sender: conversation.SenderBot},
	}
	answer, err := s.ChitChat(context.Background(), "sk-test", history, "What can you do?")
	if err != nil {
		t.Fatalf("ChitChat: %v", err)
	}
	if answer != "Hi! How can I help you today?" {
		t.Errorf("answer = %q", answer)
	}

	msgs := stub.requests[0].Messages
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "PaperChat") {
		t.Errorf("first message is not the persona: %+v", msgs[0])
	}
	// history (2) + new question, plus the persona on top.
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[2].Role != llm.RoleAssistant {
		t.Errorf("bot history role = %q, want assistant", msgs[2].Role)
	}
	if msgs[3].Role != llm.RoleUser || msgs[3].Content != "What can you do?" {
		t.Errorf("final message = %+v", msgs[3])
	}
}

func TestSynthesizerWindow(t *testing.T) {
	t.Parallel()

	stub := &scriptedLLM{responses: []string{"ok"}}
	s, err := NewSynthesizer(SynthesizerConfig{Client: stub, HistoryWindow: 4})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	history := make([]conversation.Message, 10)
	for i := range history {
		sender := conversation.SenderUser
		if i%2 == 1 {
			sender = conversation.SenderBot
		}
		history[i] = conversation.Message{Text: fmt.Sprintf("msg %d", i), Sender: sender}
	}

	if _, err := s.ChitChat(context.Background(), "sk-test", history, "latest"); err != nil {
		t.Fatalf("ChitChat: %v", err)
	}

	msgs := stub.requests[0].Messages
	// Window of 4 conversation messages plus the persona.
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(msgs))
	}
	if msgs[1].Content != "msg 7" {
		t.Errorf("window start = %q, want msg 7", msgs[1].Content)
	}
	if msgs[4].Content != "latest" {
		t.Errorf("window end = %q, want the new question", msgs[4].Content)
	}
}

func TestSynthesizerGrounded(t *testing.T) {
	t.Parallel()

	stub := &scriptedLLM{responses: []string{"Attention weights tokens [1]."}}
	s, err := NewSynthesizer(SynthesizerConfig{Client: stub})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	assembled := &Context{
		Blocks: []string{"Paper Number 1: A fullText: aaa", "Paper Number 2: B fullText: bbb"},
		IDs:    []string{"p1", "p2"},
		Titles: []string{"A", "B"},
	}
	answer, err := s.Grounded(context.Background(), "sk-test", nil, "What is attention?", assembled)
	if err != nil {
		t.Fatalf("Grounded: %v", err)
	}
	if answer != "Attention weights tokens [1]." {
		t.Errorf("answer = %q", answer)
	}

	final := stub.requests[0].Messages[len(stub.requests[0].Messages)-1].Content
	if !strings.Contains(final, "Respond to the following user query: What is attention?") {
		t.Errorf("prompt missing user query: %q", final[:80])
	}
	if !strings.Contains(final, "Paper Number 1: A fullText: aaa ############## Paper Number 2: B fullText: bbb") {
		t.Error("prompt missing joined paper blocks")
	}
	if !strings.Contains(final, "approximately 150 words") {
		t.Error("prompt missing length constraint")
	}
	if !strings.Contains(final, "separate square brackets, like [1][2]") {
		t.Error("prompt missing bracket-group constraint")
	}
}

func TestSynthesizerGrounded_Error(t *testing.T) {
	t.Parallel()

	s, err := NewSynthesizer(SynthesizerConfig{Client: &scriptedLLM{err: llm.ErrInvalidAPIKey}})
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	if _, err := s.Grounded(context.Background(), "sk-bad", nil, "q", &Context{Blocks: []string{"b"}}); err == nil {
		t.Fatal("Grounded succeeded despite transport error")
	}
}

func TestNewSynthesizer_RequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewSynthesizer(SynthesizerConfig{}); err == nil {
		t.Fatal("NewSynthesizer accepted a nil client")
	}
}
