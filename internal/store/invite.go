package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInviteNotFound is returned when an invite lookup misses.
var ErrInviteNotFound = errors.New("invite not found")

// Invite grants access to a tenant to whoever redeems its opaque token
// (spec §3). Valid iff RevokedAt is nil, now < ExpiresAt, and (MaxUses is
// nil or UseCount < *MaxUses).
type Invite struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Token     string
	MaxUses   *int
	UseCount  int
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// IsValid reports whether the invite may still be redeemed at the given
// instant, per spec §3's validity clause. Evaluated in a fixed order so
// callers can reject before any side effect (spec §8 property 10c).
func (i *Invite) IsValid(now time.Time) bool {
	if i.RevokedAt != nil {
		return false
	}
	if !now.Before(i.ExpiresAt) {
		return false
	}
	if i.MaxUses != nil && i.UseCount >= *i.MaxUses {
		return false
	}
	return true
}

// InviteRepository persists Invite rows.
type InviteRepository struct {
	db *pgxpool.Pool
}

// NewInviteRepository builds an InviteRepository over the given pool.
func NewInviteRepository(db *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{db: db}
}

// NewInviteToken mints a fresh opaque, URL-safe invite token.
func NewInviteToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create inserts a new invite row.
func (r *InviteRepository) Create(ctx context.Context, inv *Invite) error {
	inv.ID = newID()
	inv.CreatedAt = utcNow()

	const q = `
		INSERT INTO invites (id, tenant_id, token, max_uses, use_count, expires_at, revoked_at, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, q, inv.ID, inv.TenantID, inv.Token, inv.MaxUses, inv.UseCount,
		inv.ExpiresAt, inv.RevokedAt, inv.CreatedBy, inv.CreatedAt)
	return err
}

// GetByToken retrieves an invite by its opaque token.
func (r *InviteRepository) GetByToken(ctx context.Context, token string) (*Invite, error) {
	const q = baseInviteSelect + ` WHERE token = $1`
	return r.scanOne(ctx, q, token)
}

// GetByID retrieves an invite by its own id.
func (r *InviteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Invite, error) {
	const q = baseInviteSelect + ` WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// IncrementUse atomically bumps an invite's use count by one. Callers must
// have already checked IsValid within the same transaction as any
// membership creation, so that an invite failing validity is rejected
// before any user or membership row is created (spec §8 property 10c).
func (r *InviteRepository) IncrementUse(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	const q = `UPDATE invites SET use_count = use_count + 1 WHERE id = $1`
	tag, err := tx.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// Revoke marks an invite as revoked, immediately invalidating it.
func (r *InviteRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE invites SET revoked_at = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, q, utcNow(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

const baseInviteSelect = `
	SELECT id, tenant_id, token, max_uses, use_count, expires_at, revoked_at, created_by, created_at
	FROM invites`

func (r *InviteRepository) scanOne(ctx context.Context, query string, args ...any) (*Invite, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrInviteNotFound
	}
	return scanInvite(rows)
}

func scanInvite(rows pgx.Rows) (*Invite, error) {
	var inv Invite
	err := rows.Scan(&inv.ID, &inv.TenantID, &inv.Token, &inv.MaxUses, &inv.UseCount,
		&inv.ExpiresAt, &inv.RevokedAt, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
