package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMembershipNotFound is returned when a membership lookup misses.
var ErrMembershipNotFound = errors.New("membership not found")

// ErrAlreadyMember is returned when a (user, tenant) pair already has a
// membership row (spec §7, Conflict).
var ErrAlreadyMember = errors.New("user is already a member of this tenant")

// ErrLastOwner is returned when an operation would leave an active tenant
// with zero owners (spec §3, §8 property 10a).
var ErrLastOwner = errors.New("tenant must retain at least one owner")

// TenantMembership is a (user, tenant, role) triple (spec §3).
type TenantMembership struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     MembershipRole
	JoinedAt time.Time
}

// MembershipRepository persists TenantMembership rows.
type MembershipRepository struct {
	db *pgxpool.Pool
}

// NewMembershipRepository builds a MembershipRepository over the given pool.
func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create inserts a new membership row, failing ErrAlreadyMember on the
// unique (user_id, tenant_id) constraint.
func (r *MembershipRepository) Create(ctx context.Context, m *TenantMembership) error {
	m.ID = newID()
	m.JoinedAt = utcNow()

	const q = `
		INSERT INTO tenant_memberships (id, user_id, tenant_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q, m.ID, m.UserID, m.TenantID, m.Role, m.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyMember
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// ListByTenant returns every membership for a tenant.
func (r *MembershipRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*TenantMembership, error) {
	const q = `SELECT id, user_id, tenant_id, role, joined_at FROM tenant_memberships WHERE tenant_id = $1`
	rows, err := r.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TenantMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get retrieves the membership for a (user, tenant) pair.
func (r *MembershipRepository) Get(ctx context.Context, userID, tenantID uuid.UUID) (*TenantMembership, error) {
	const q = `SELECT id, user_id, tenant_id, role, joined_at FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`
	rows, err := r.db.Query(ctx, q, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrMembershipNotFound
	}
	return scanMembership(rows)
}

// GetByID retrieves a membership by its own id.
func (r *MembershipRepository) GetByID(ctx context.Context, id uuid.UUID) (*TenantMembership, error) {
	const q = `SELECT id, user_id, tenant_id, role, joined_at FROM tenant_memberships WHERE id = $1`
	rows, err := r.db.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrMembershipNotFound
	}
	return scanMembership(rows)
}

// CountOwners returns the number of owner-role memberships for a tenant.
func (r *MembershipRepository) CountOwners(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM tenant_memberships WHERE tenant_id = $1 AND role = $2`
	if err := r.db.QueryRow(ctx, q, tenantID, RoleOwner).Scan(&n); err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// SetRole changes a membership's role. Callers must check CountOwners before
// demoting the last owner (spec §8 property 10a); this method does not
// enforce that invariant itself since it has no view of "is this the only
// active tenant owner" without the caller's already-loaded context.
func (r *MembershipRepository) SetRole(ctx context.Context, id uuid.UUID, role MembershipRole) error {
	const q = `UPDATE tenant_memberships SET role = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, q, role, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// Delete removes a membership row.
func (r *MembershipRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM tenant_memberships WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func scanMembership(rows pgx.Rows) (*TenantMembership, error) {
	var m TenantMembership
	if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.JoinedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
