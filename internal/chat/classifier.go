// Package chat implements the conversational retrieval pipeline: intent
// classification, context assembly, grounded synthesis, citation repair,
// and the turn state machine that sequences them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/log"
)

// ErrNoAnswer indicates the classifier declined to produce a query or tag.
// The turn terminates; there is no retry.
var ErrNoAnswer = errors.New("no answer found")

// Intent is the classifier's verdict for a user message.
type Intent int

const (
	// IntentSearch means the message needs retrieval; Classification.Query
	// holds the rewritten keyword query.
	IntentSearch Intent = iota

	// IntentChitChat means the message needs no document context.
	IntentChitChat

	// IntentFollowUp means the message refers to previously retrieved
	// context rather than introducing a new topic.
	IntentFollowUp
)

func (i Intent) String() string {
	switch i {
	case IntentSearch:
		return "search"
	case IntentChitChat:
		return "chit-chat"
	case IntentFollowUp:
		return "follow-up"
	default:
		return fmt.Sprintf("Intent(%d)", int(i))
	}
}

// Classification is the outcome of classifying one user message.
type Classification struct {
	Intent Intent
	// Query is the rewritten keyword query, set only for IntentSearch.
	Query string
}

// Classifier rewrites a user message into a keyword query or an intent tag
// with a single model call. The model's answer is trusted verbatim; the
// only local processing is trimming whitespace and quote characters.
type Classifier struct {
	client llm.Client
	logger log.Logger
}

// NewClassifier creates a classifier using the given model client.
func NewClassifier(client llm.Client, logger log.Logger) *Classifier {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify decides how the pipeline should treat userMessage.
// Returns ErrNoAnswer when the model emits the literal refusal.
func (c *Classifier) Classify(ctx context.Context, apiKey, userMessage string) (Classification, error) {
	out, err := c.client.Complete(ctx, llm.Request{
		APIKey: apiKey,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: personaPrompt},
			{Role: llm.RoleUser, Content: classifierPrompt(userMessage)},
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classifying message: %w", err)
	}

	tag := trimQuery(out)
	switch tag {
	case tagNoAnswer:
		return Classification{}, ErrNoAnswer
	case tagChitChat, tagChitChat + " query":
		c.logger.Debug("classified message", "intent", IntentChitChat)
		return Classification{Intent: IntentChitChat}, nil
	case tagFollowUp:
		c.logger.Debug("classified message", "intent", IntentFollowUp)
		return Classification{Intent: IntentFollowUp}, nil
	}

	c.logger.Debug("classified message", "intent", IntentSearch, "query", tag)
	return Classification{Intent: IntentSearch, Query: tag}, nil
}

// trimQuery strips surrounding whitespace and quote characters the model
// sometimes adds despite instructions.
func trimQuery(s string) string {
	return strings.Trim(s, " \t\r\n\"'`“”‘’")
}
