package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSnapshotNotFound is returned when a snapshot lookup misses.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ConversationSnapshot is a compressed, encrypted summary of a conversation
// prefix (spec §3). The most recent snapshot is a conversation's "active
// snapshot" (spec §4.6).
type ConversationSnapshot struct {
	ID               uuid.UUID
	ConversationID   uuid.UUID
	Ciphertext       []byte
	IV               []byte
	TokenEstimate    int
	MessagesArchived int
	CreatedAt        time.Time
}

// SnapshotRepository persists ConversationSnapshot rows.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository builds a SnapshotRepository over the given pool.
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// advisoryLockKey derives a stable int64 advisory-lock key from a
// conversation id, so concurrent CreateSnapshot calls for the same
// conversation serialise while different conversations proceed in
// parallel (spec §5, §8 property 8's "exactly one snapshot" guarantee).
func advisoryLockKey(conversationID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(conversationID[:])
	return int64(h.Sum64())
}

// Latest returns the most recent snapshot for a conversation, or nil (not
// ErrSnapshotNotFound) when there is none — a conversation legitimately has
// zero snapshots (spec §3).
func (r *SnapshotRepository) Latest(ctx context.Context, conversationID uuid.UUID) (*ConversationSnapshot, error) {
	const q = baseSnapshotSelect + ` WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1`
	rows, err := r.db.Query(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanSnapshot(rows)
}

// Create appends a new snapshot row under a per-conversation advisory lock,
// so two concurrent summarisation attempts on the same conversation
// collapse to one (spec §8 property 8). The caller has already computed
// the summary plaintext and its encryption; this method only persists it.
func (r *SnapshotRepository) Create(ctx context.Context, s *ConversationSnapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(s.ConversationID)); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	s.ID = newID()
	s.CreatedAt = utcNow()

	const q = `
		INSERT INTO conversation_snapshots (id, conversation_id, ciphertext, iv, token_estimate, messages_archived, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, q, s.ID, s.ConversationID, s.Ciphertext, s.IV, s.TokenEstimate, s.MessagesArchived, s.CreatedAt); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

const baseSnapshotSelect = `
	SELECT id, conversation_id, ciphertext, iv, token_estimate, messages_archived, created_at
	FROM conversation_snapshots`

func scanSnapshot(rows pgx.Rows) (*ConversationSnapshot, error) {
	var s ConversationSnapshot
	err := rows.Scan(&s.ID, &s.ConversationID, &s.Ciphertext, &s.IV, &s.TokenEstimate, &s.MessagesArchived, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
