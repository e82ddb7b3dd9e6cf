package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTenantNotFound is returned when a tenant lookup misses.
var ErrTenantNotFound = errors.New("tenant not found")

// Tenant is the root of configuration inheritance and ownership (spec §3).
type Tenant struct {
	ID             uuid.UUID
	Name           string
	ParentTenantID *uuid.UUID
	Status         TenantStatus
	Config         ConfigurableFields
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TenantRepository persists Tenant rows.
type TenantRepository struct {
	db *pgxpool.Pool
}

// NewTenantRepository builds a TenantRepository over the given pool.
func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new tenant, defaulting to active status.
func (r *TenantRepository) Create(ctx context.Context, t *Tenant) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}

	t.ID = newID()
	now := utcNow()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = TenantActive
	}

	const q = `
		INSERT INTO tenants (id, name, parent_tenant_id, status, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.Exec(ctx, q, t.ID, t.Name, t.ParentTenantID, t.Status, cfg, t.CreatedAt, t.UpdatedAt)
	return err
}

// GetByID retrieves a tenant by its id.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	const q = `SELECT id, name, parent_tenant_id, status, config, created_at, updated_at
		FROM tenants WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// AncestorChain walks parent_tenant_id starting at id, returning the tenant
// itself first followed by each ancestor up to the root. Used by the config
// resolver's inheritance walk (spec §4.3). A cycle (which Create-time
// validation should prevent) is defended against with a hard depth cap.
func (r *TenantRepository) AncestorChain(ctx context.Context, id uuid.UUID) ([]*Tenant, error) {
	const maxDepth = 64
	chain := make([]*Tenant, 0, 4)
	cur := id
	for i := 0; i < maxDepth; i++ {
		t, err := r.GetByID(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		if t.ParentTenantID == nil {
			return chain, nil
		}
		cur = *t.ParentTenantID
	}
	return nil, fmt.Errorf("tenant ancestor chain exceeds %d levels, possible cycle", maxDepth)
}

// UpdateConfig overwrites the tenant's configurable fields.
func (r *TenantRepository) UpdateConfig(ctx context.Context, id uuid.UUID, cfg ConfigurableFields) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}
	const q = `UPDATE tenants SET config = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, q, raw, utcNow(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// SetStatus transitions a tenant between active and suspended.
func (r *TenantRepository) SetStatus(ctx context.Context, id uuid.UUID, status TenantStatus) error {
	const q = `UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, q, status, utcNow(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (r *TenantRepository) scanOne(ctx context.Context, query string, args ...any) (*Tenant, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTenantNotFound
	}
	return scanTenant(rows)
}

func scanTenant(rows pgx.Rows) (*Tenant, error) {
	var t Tenant
	var cfgRaw []byte
	if err := rows.Scan(&t.ID, &t.Name, &t.ParentTenantID, &t.Status, &cfgRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(cfgRaw) > 0 {
		if err := json.Unmarshal(cfgRaw, &t.Config); err != nil {
			return nil, fmt.Errorf("unmarshal tenant config: %w", err)
		}
	}
	return &t, nil
}
