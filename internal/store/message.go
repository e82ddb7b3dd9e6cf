package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationMessage is one append-only turn of a conversation (spec §3).
// Content is stored encrypted; TokenEstimate is either the caller-supplied
// estimate or ceil(len(plaintext)/4) (spec §4.6, §9 Open Questions).
type ConversationMessage struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	Role            MessageRole
	Ciphertext      []byte
	IV              []byte
	TokenEstimate   int
	CreatedAt       time.Time
	BelongsToSnapshotID *uuid.UUID
}

// MessageRepository persists ConversationMessage rows.
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository builds a MessageRepository over the given pool.
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a new message row.
func (r *MessageRepository) Append(ctx context.Context, m *ConversationMessage) error {
	m.ID = newID()
	m.CreatedAt = utcNow()

	const q = `
		INSERT INTO conversation_messages (
			id, conversation_id, role, ciphertext, iv, token_estimate, created_at, belongs_to_snapshot_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, q, m.ID, m.ConversationID, m.Role, m.Ciphertext, m.IV, m.TokenEstimate, m.CreatedAt, m.BelongsToSnapshotID)
	return err
}

// ListAfter returns every message in a conversation with createdAt strictly
// after `after` (or every message, if after is the zero time), ordered
// ascending — the "post-snapshot" window of spec §4.6's loadContext.
func (r *MessageRepository) ListAfter(ctx context.Context, conversationID uuid.UUID, after time.Time) ([]*ConversationMessage, error) {
	const q = `
		SELECT id, conversation_id, role, ciphertext, iv, token_estimate, created_at, belongs_to_snapshot_id
		FROM conversation_messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, q, conversationID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConversationMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(rows pgx.Rows) (*ConversationMessage, error) {
	var m ConversationMessage
	err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Ciphertext, &m.IV, &m.TokenEstimate, &m.CreatedAt, &m.BelongsToSnapshotID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
