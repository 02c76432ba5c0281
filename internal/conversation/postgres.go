package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperchat/paperchat/internal/log"
)

// PostgresStore persists conversations in PostgreSQL. Messages are stored as
// a single JSONB document per conversation: conversations are small (old
// messages are pruned of their heavy payload) and always read and written
// whole, so a per-message table would buy nothing but join cost.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) (*Conversation, error) {
	stored := conv.Clone()
	stored.ID = uuid.NewString()
	stored.LastModified = time.Now().UTC()

	payload, err := json.Marshal(stored.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshaling messages: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (id, owner_id, kind, name, last_modified, messages)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.OwnerID, stored.Kind, stored.Name, stored.LastModified, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", stored.ID, "kind", stored.Kind)
	return stored, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, conv *Conversation) (*Conversation, error) {
	stored := conv.Clone()
	stored.LastModified = time.Now().UTC()

	payload, err := json.Marshal(stored.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshaling messages: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET kind = $2, name = $3, last_modified = $4, messages = $5
		 WHERE id = $1`,
		stored.ID, stored.Kind, stored.Name, stored.LastModified, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("updating conversation %s: %w", stored.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	s.logger.Debug("updated conversation", "id", stored.ID, "messages", len(stored.Messages))
	return stored, nil
}

// FindByID implements Store.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, kind, name, last_modified, messages
		 FROM conversations WHERE id = $1`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding conversation %s: %w", id, err)
	}
	return conv, nil
}

// ListByOwner implements Store.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, kind, name, last_modified, messages
		 FROM conversations WHERE owner_id = $1
		 ORDER BY last_modified DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv    Conversation
		payload []byte
	)
	if err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Kind, &conv.Name,
		&conv.LastModified, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return &conv, nil
}
