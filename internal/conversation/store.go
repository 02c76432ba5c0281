package conversation

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested conversation does not exist.
// Check with errors.Is().
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations. Operations are idempotent by id and safe to
// retry; implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new conversation, assigning its ID and LastModified,
	// and returns the stored copy.
	Create(ctx context.Context, conv *Conversation) (*Conversation, error)

	// Update replaces the stored conversation with the same ID, refreshing
	// LastModified, and returns the stored copy. Returns ErrNotFound if the
	// conversation does not exist.
	Update(ctx context.Context, conv *Conversation) (*Conversation, error)

	// FindByID returns the conversation with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Conversation, error)

	// ListByOwner returns all conversations belonging to the owner, most
	// recently modified first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Conversation, error)

	// Delete removes a conversation. Deleting a missing conversation is not
	// an error (the operation is idempotent).
	Delete(ctx context.Context, id string) error
}

// PruneForUpdate returns a copy of msgs where every message except the last
// has its Publications array cleared. PublicationIDs and PublicationTitles
// are retained unchanged so citation links in older turns keep resolving.
//
// Only the newest message carries the full source text blocks; this bounds
// stored payload size and the size of prompts later built from history.
func PruneForUpdate(msgs []Message) []Message {
	out := CloneMessages(msgs)
	for i := range out {
		if i < len(out)-1 {
			out[i].Publications = nil
		}
	}
	return out
}
