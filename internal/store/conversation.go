package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConversationNotFound is returned when a conversation lookup misses.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is a caller-visible thread of messages (spec §3).
type Conversation struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	AgentID      *uuid.UUID
	PartitionID  *uuid.UUID
	ExternalID   string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// ConversationRepository persists Conversation rows.
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository builds a ConversationRepository over the given pool.
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate materialises a conversation idempotently on (tenant,
// externalID) (spec §4.6, §8 property 9).
func (r *ConversationRepository) GetOrCreate(ctx context.Context, tenantID uuid.UUID, partitionID *uuid.UUID, externalID string, agentID *uuid.UUID) (*Conversation, error) {
	id := newID()
	now := utcNow()

	const insert = `
		INSERT INTO conversations (id, tenant_id, agent_id, partition_id, external_id, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tenant_id, external_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, id, tenantID, agentID, partitionID, externalID, now); err != nil {
		return nil, err
	}

	const q = baseConversationSelect + ` WHERE tenant_id = $1 AND external_id = $2`
	return r.scanOne(ctx, q, tenantID, externalID)
}

// GetByID retrieves a conversation by its id.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	const q = baseConversationSelect + ` WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// TouchLastActive bumps a conversation's last_active_at to now. Called as
// part of storeMessages; failures here are non-critical (spec §4.6) and
// should be logged and swallowed by the caller, not propagated to the
// response path.
func (r *ConversationRepository) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE conversations SET last_active_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, q, utcNow(), id)
	return err
}

// ListByTenant returns every conversation owned by a tenant, most recently
// active first (portal-plane read, spec §6).
func (r *ConversationRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Conversation, error) {
	const q = baseConversationSelect + ` WHERE tenant_id = $1 ORDER BY last_active_at DESC`
	rows, err := r.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const baseConversationSelect = `
	SELECT id, tenant_id, agent_id, partition_id, external_id, created_at, last_active_at
	FROM conversations`

func (r *ConversationRepository) scanOne(ctx context.Context, query string, args ...any) (*Conversation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrConversationNotFound
	}
	return scanConversation(rows)
}

func scanConversation(rows pgx.Rows) (*Conversation, error) {
	var c Conversation
	err := rows.Scan(&c.ID, &c.TenantID, &c.AgentID, &c.PartitionID, &c.ExternalID, &c.CreatedAt, &c.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
