package chat

import (
	"context"
	"fmt"

	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/log"
)

// DefaultHistoryWindow bounds how many trailing messages, including the new
// question, are sent to the model.
const DefaultHistoryWindow = 8

// SynthesizerConfig configures a Synthesizer.
type SynthesizerConfig struct {
	Client llm.Client

	// HistoryWindow overrides DefaultHistoryWindow when positive.
	HistoryWindow int

	Logger log.Logger
}

func (c *SynthesizerConfig) validate() error {
	if c.Client == nil {
		return fmt.Errorf("synthesizer: Client is required")
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Synthesizer generates answers: grounded in assembled paper blocks, or
// ungrounded for chit-chat turns. Transport failures surface unchanged; the
// orchestrator decides what a failed generation means for the turn.
type Synthesizer struct {
	client llm.Client
	window int
	logger log.Logger
}

// NewSynthesizer creates a synthesizer from cfg.
func NewSynthesizer(cfg SynthesizerConfig) (*Synthesizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{client: cfg.Client, window: cfg.HistoryWindow, logger: cfg.Logger}, nil
}

// Grounded answers userQuery from the assembled paper blocks, with the
// trailing conversation history for continuity.
func (s *Synthesizer) Grounded(ctx context.Context, apiKey string, history []conversation.Message, userQuery string, assembled *Context) (string, error) {
	question := groundedPrompt(userQuery, assembled.Blocks)
	answer, err := s.complete(ctx, apiKey, history, question)
	if err != nil {
		return "", fmt.Errorf("generating grounded answer: %w", err)
	}
	return answer, nil
}

// ChitChat answers userMessage from conversation history alone.
func (s *Synthesizer) ChitChat(ctx context.Context, apiKey string, history []conversation.Message, userMessage string) (string, error) {
	answer, err := s.complete(ctx, apiKey, history, userMessage)
	if err != nil {
		return "", fmt.Errorf("generating chit-chat answer: %w", err)
	}
	return answer, nil
}

// complete maps history plus the final user content into chat messages,
// windows them, prepends the persona, and calls the model.
func (s *Synthesizer) complete(ctx context.Context, apiKey string, history []conversation.Message, finalContent string) (string, error) {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: roleFor(h.Sender), Content: h.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: finalContent})

	// The window counts conversation messages; the persona rides on top.
	if len(msgs) > s.window {
		msgs = msgs[len(msgs)-s.window:]
	}
	msgs = append([]llm.Message{{Role: llm.RoleSystem, Content: personaPrompt}}, msgs...)

	s.logger.Debug("synthesizing answer", "messages", len(msgs))
	return s.client.Complete(ctx, llm.Request{APIKey: apiKey, Messages: msgs})
}

// roleFor maps a message sender to its chat-completion role.
func roleFor(s conversation.Sender) string {
	if s == conversation.SenderBot {
		return llm.RoleAssistant
	}
	return string(s)
}
