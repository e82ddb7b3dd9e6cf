package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrApiKeyNotFound is returned when an api key lookup misses.
var ErrApiKeyNotFound = errors.New("api key not found")

// ApiKey is a data-plane credential identifying a specific Agent (spec §3).
// The raw key is never stored; Hash is its SHA-256 digest and DisplayPrefix
// is its first 12 characters, both computed by internal/cryptoutil.
type ApiKey struct {
	ID            uuid.UUID
	AgentID       uuid.UUID
	Name          string
	Hash          string
	DisplayPrefix string
	Status        ApiKeyStatus
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// ApiKeyRepository persists ApiKey rows.
type ApiKeyRepository struct {
	db *pgxpool.Pool
}

// NewApiKeyRepository builds an ApiKeyRepository over the given pool.
func NewApiKeyRepository(db *pgxpool.Pool) *ApiKeyRepository {
	return &ApiKeyRepository{db: db}
}

// Create inserts a new active api key row.
func (r *ApiKeyRepository) Create(ctx context.Context, k *ApiKey) error {
	k.ID = newID()
	k.CreatedAt = utcNow()
	if k.Status == "" {
		k.Status = ApiKeyActive
	}

	const q = `
		INSERT INTO api_keys (id, agent_id, name, key_hash, display_prefix, status, revoked_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, q, k.ID, k.AgentID, k.Name, k.Hash, k.DisplayPrefix, k.Status, k.RevokedAt, k.CreatedAt)
	return err
}

// GetByID retrieves an api key by its own id, regardless of status.
func (r *ApiKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*ApiKey, error) {
	const q = baseApiKeySelect + ` WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetActiveByHash looks up an api key by its lookup hash, returning
// ErrApiKeyNotFound both when the hash is unknown and when it belongs to a
// revoked key — so a revoked key never authenticates (spec §8 property 10b).
func (r *ApiKeyRepository) GetActiveByHash(ctx context.Context, hash string) (*ApiKey, error) {
	const q = baseApiKeySelect + ` WHERE key_hash = $1 AND status = $2`
	return r.scanOne(ctx, q, hash, ApiKeyActive)
}

// ListByAgent returns every api key owned by an agent, newest first.
func (r *ApiKeyRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*ApiKey, error) {
	const q = baseApiKeySelect + ` WHERE agent_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ApiKey
	for rows.Next() {
		k, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Revoke marks an api key as revoked. Revocation takes effect immediately:
// any in-flight GetActiveByHash call issued afterward will miss.
func (r *ApiKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE api_keys SET status = $1, revoked_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, q, ApiKeyRevoked, utcNow(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrApiKeyNotFound
	}
	return nil
}

const baseApiKeySelect = `
	SELECT id, agent_id, name, key_hash, display_prefix, status, revoked_at, created_at
	FROM api_keys`

func (r *ApiKeyRepository) scanOne(ctx context.Context, query string, args ...any) (*ApiKey, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrApiKeyNotFound
	}
	return scanApiKey(rows)
}

func scanApiKey(rows pgx.Rows) (*ApiKey, error) {
	var k ApiKey
	err := rows.Scan(&k.ID, &k.AgentID, &k.Name, &k.Hash, &k.DisplayPrefix, &k.Status, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
