package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/log"
)

// DefaultDocHistoryWindow bounds how many trailing messages feed the
// single-document prompt.
const DefaultDocHistoryWindow = 10

// ordinalPrefix strips "1. ", "2. " etc. from generated follow-up
// questions.
var ordinalPrefix = regexp.MustCompile(`^\d+\.\s`)

// DocChatConfig configures a DocChat.
type DocChatConfig struct {
	Client llm.Client
	Store  conversation.Store

	// HistoryWindow overrides DefaultDocHistoryWindow when positive.
	HistoryWindow int

	Logger log.Logger
}

func (c *DocChatConfig) validate() error {
	if c.Client == nil {
		return fmt.Errorf("docchat: Client is required")
	}
	if c.Store == nil {
		return fmt.Errorf("docchat: Store is required")
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultDocHistoryWindow
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// DocChat answers questions about one fixed document ("ask this paper").
// Context is the document's full text rather than retrieval results, and
// each successful answer is followed by three suggested next questions.
type DocChat struct {
	client llm.Client
	store  conversation.Store
	window int
	logger log.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDocChat creates a DocChat from cfg.
func NewDocChat(cfg DocChatConfig) (*DocChat, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &DocChat{
		client:   cfg.Client,
		store:    cfg.Store,
		window:   cfg.HistoryWindow,
		logger:   cfg.Logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// DocTurnRequest is one question about a fixed paper.
type DocTurnRequest struct {
	APIKey  string
	OwnerID string

	// ConversationID is empty for the first question about this paper.
	ConversationID string

	PaperID    string
	PaperTitle string
	PaperText  string

	Message string
}

// DocTurnResult is the outcome of a document-chat turn. Questions holds the
// suggested follow-ups, empty when the turn failed or suggestion generation
// did.
type DocTurnResult struct {
	Conversation *conversation.Conversation
	State        State
	Questions    []string
}

// Submit runs one document-chat turn. Like Orchestrator.Submit, pipeline
// failures become an appended system message rather than a returned error.
func (d *DocChat) Submit(ctx context.Context, req DocTurnRequest) (*DocTurnResult, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	conv, history, err := d.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer d.release(conv.ID)

	prompt := docPrompt(
		truncate(req.PaperText, maxContextTokens*charsPerToken),
		docHistory(history, d.window),
		req.Message,
	)
	answer, err := d.client.Complete(ctx, llm.Request{
		APIKey: req.APIKey,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: personaPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		text := msgGenerationFailed
		if llm.IsAuthError(err) {
			text = msgInvalidKey
		}
		conv.Messages = append(conv.Messages, conversation.Message{
			Text:   text,
			Sender: conversation.SenderSystem,
		})
		d.logger.Warn("document turn failed", "conversation", conv.ID, "error", err)
		return &DocTurnResult{Conversation: conv, State: StateErrored}, nil
	}

	conv.Messages = conversation.PruneForUpdate(append(conv.Messages,
		conversation.Message{Text: answer, Sender: conversation.SenderBot}))
	updated, err := d.store.Update(ctx, conv)
	if err != nil {
		conv.Messages = append(conv.Messages, conversation.Message{
			Text:   msgGenerationFailed,
			Sender: conversation.SenderSystem,
		})
		d.logger.Warn("persisting document turn failed", "conversation", conv.ID, "error", err)
		return &DocTurnResult{Conversation: conv, State: StateErrored}, nil
	}

	// Suggestion failure does not fail the turn; the answer is already
	// persisted.
	questions, err := d.suggestQuestions(ctx, req, updated.Messages)
	if err != nil {
		d.logger.Warn("generating follow-up questions failed",
			"conversation", updated.ID, "error", err)
	}

	return &DocTurnResult{Conversation: updated, State: StateIdle, Questions: questions}, nil
}

// begin loads or creates the document conversation, takes its single-flight
// slot, and optimistically persists the question. The returned history
// excludes the new question.
func (d *DocChat) begin(ctx context.Context, req DocTurnRequest) (*conversation.Conversation, []conversation.Message, error) {
	userMsg := conversation.Message{Text: req.Message, Sender: conversation.SenderUser}

	if req.ConversationID == "" {
		created, err := d.store.Create(ctx, &conversation.Conversation{
			OwnerID:  req.OwnerID,
			Kind:     req.PaperID,
			Name:     d.suggestName(ctx, req),
			Messages: []conversation.Message{userMsg},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating conversation: %w", err)
		}
		d.acquire(created.ID)
		return created, nil, nil
	}

	if !d.acquire(req.ConversationID) {
		return nil, nil, ErrTurnInFlight
	}

	conv, err := d.store.FindByID(ctx, req.ConversationID)
	if err != nil {
		d.release(req.ConversationID)
		return nil, nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv.OwnerID != req.OwnerID || conv.Kind != req.PaperID {
		d.release(req.ConversationID)
		return nil, nil, conversation.ErrNotFound
	}

	history := conversation.CloneMessages(conv.Messages)
	conv.Messages = append(conversation.PruneForUpdate(conv.Messages), userMsg)
	updated, err := d.store.Update(ctx, conv)
	if err != nil {
		d.release(req.ConversationID)
		return nil, nil, fmt.Errorf("persisting question: %w", err)
	}
	return updated, history, nil
}

// suggestName asks the model for a short conversation name. Naming is
// cosmetic; on failure the question itself becomes the name.
func (d *DocChat) suggestName(ctx context.Context, req DocTurnRequest) string {
	name, err := d.client.Complete(ctx, llm.Request{
		APIKey: req.APIKey,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: personaPrompt},
			{Role: llm.RoleUser, Content: namePrompt(req.Message, req.PaperTitle)},
		},
	})
	if err != nil {
		d.logger.Warn("naming conversation failed", "error", err)
		return req.Message
	}
	return strings.TrimSpace(name)
}

// suggestQuestions asks for three follow-up questions distinct from the
// user's previous ones.
func (d *DocChat) suggestQuestions(ctx context.Context, req DocTurnRequest, msgs []conversation.Message) ([]string, error) {
	var asked []string
	for _, m := range msgs {
		if m.Sender == conversation.SenderUser {
			asked = append(asked, m.Text)
		}
	}

	prompt := followupPrompt(truncate(req.PaperText, docContextTokens*charsPerToken), asked)
	out, err := d.client.Complete(ctx, llm.Request{
		APIKey: req.APIKey,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: personaPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseQuestions(out), nil
}

// parseQuestions splits the model's numbered list into questions: newline
// separated, leading "N. " stripped, blanks dropped.
func parseQuestions(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		q := ordinalPrefix.ReplaceAllString(line, "")
		if strings.TrimSpace(q) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

// docHistory filters out a "No Answer Found" answer and the question that
// led to it, then windows to the last limit messages and joins their texts.
func docHistory(msgs []conversation.Message, limit int) string {
	var kept []string
	for i, m := range msgs {
		if strings.TrimSpace(m.Text) == tagNoAnswer {
			continue
		}
		if i+1 < len(msgs) && strings.TrimSpace(msgs[i+1].Text) == tagNoAnswer {
			continue
		}
		kept = append(kept, m.Text)
	}
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	return strings.Join(kept, "\n\n")
}

func (d *DocChat) acquire(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[conversationID]; busy {
		return false
	}
	d.inFlight[conversationID] = struct{}{}
	return true
}

func (d *DocChat) release(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, conversationID)
}
