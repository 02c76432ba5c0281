// Package conversation defines the conversation data model and its
// persistence contract.
//
// A conversation is an append-only list of messages. Messages are never
// reordered or deleted individually; the only mutation applied to old
// messages is dropping their heavy Publications payload when a new turn is
// persisted (see PruneForUpdate).
package conversation

import (
	"fmt"
	"time"
)

// Sender identifies who produced a message.
type Sender string

// Valid senders.
const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// KindGeneral marks a conversation over the whole corpus. Any other Kind
// value is the id of the single document the conversation is scoped to.
const KindGeneral = "general"

// Message is a single entry in a conversation.
//
// PublicationIDs, PublicationTitles and Publications are parallel arrays:
// index i in each corresponds to the inline citation marker [i+1] in Text.
// They are either all empty or all the same length, except that
// Publications (the full source text blocks) is cleared on non-final
// messages during persistence while the id/title metadata is retained to
// keep citation links in older turns functional.
type Message struct {
	Text              string   `json:"text"`
	Sender            Sender   `json:"sender"`
	Concept           string   `json:"concept,omitempty"`
	PublicationIDs    []string `json:"publicationIds,omitempty"`
	PublicationTitles []string `json:"publicationTitles,omitempty"`
	Publications      []string `json:"publications,omitempty"`
}

// Validate checks the parallel-array invariant. A pruned message (empty
// Publications but retained ids/titles) is valid.
func (m Message) Validate() error {
	if len(m.PublicationIDs) != len(m.PublicationTitles) {
		return fmt.Errorf("publication ids (%d) and titles (%d) differ in length",
			len(m.PublicationIDs), len(m.PublicationTitles))
	}
	if len(m.Publications) != 0 && len(m.Publications) != len(m.PublicationIDs) {
		return fmt.Errorf("publications (%d) does not match ids (%d)",
			len(m.Publications), len(m.PublicationIDs))
	}
	return nil
}

// Conversation is a persisted chat thread.
type Conversation struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Kind         string    `json:"kind"` // KindGeneral or a document id
	Name         string    `json:"name"`
	LastModified time.Time `json:"lastModified"`
	Messages     []Message `json:"messages"`
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// results freely.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = CloneMessages(c.Messages)
	return &cp
}

// CloneMessages deep-copies a message slice including the citation arrays.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].PublicationIDs = append([]string(nil), m.PublicationIDs...)
		out[i].PublicationTitles = append([]string(nil), m.PublicationTitles...)
		out[i].Publications = append([]string(nil), m.Publications...)
	}
	return out
}
