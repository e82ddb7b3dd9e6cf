package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPartitionNotFound is returned when a partition lookup misses.
var ErrPartitionNotFound = errors.New("partition not found")

// Partition is a caller-supplied grouping entity for conversations, forming
// a tenant-local forest (spec §3).
type Partition struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ExternalID       string
	ParentPartitionID *uuid.UUID
	Title            *string
	CreatedAt        time.Time
}

// PartitionRepository persists Partition rows.
type PartitionRepository struct {
	db *pgxpool.Pool
}

// NewPartitionRepository builds a PartitionRepository over the given pool.
func NewPartitionRepository(db *pgxpool.Pool) *PartitionRepository {
	return &PartitionRepository{db: db}
}

// GetOrCreate materialises a partition idempotently on (tenant, externalID)
// (spec §4.6). Concurrent callers supplying the same pair converge on the
// same row via ON CONFLICT DO NOTHING followed by a re-select (spec §8
// property 9), matching the teacher's LinkOAuth upsert shape.
func (r *PartitionRepository) GetOrCreate(ctx context.Context, tenantID uuid.UUID, externalID string, parentID *uuid.UUID) (*Partition, error) {
	id := newID()
	now := utcNow()

	const insert = `
		INSERT INTO partitions (id, tenant_id, external_id, parent_partition_id, title, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5)
		ON CONFLICT (tenant_id, external_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, id, tenantID, externalID, parentID, now); err != nil {
		return nil, err
	}

	const q = baseSelect + ` WHERE tenant_id = $1 AND external_id = $2`
	return r.scanOne(ctx, q, tenantID, externalID)
}

// ListByTenant returns every partition owned by a tenant, newest first
// (portal-plane read, spec §6).
func (r *PartitionRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Partition, error) {
	const q = baseSelect + ` WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Partition
	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const baseSelect = `
	SELECT id, tenant_id, external_id, parent_partition_id, title, created_at
	FROM partitions`

func (r *PartitionRepository) scanOne(ctx context.Context, query string, args ...any) (*Partition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrPartitionNotFound
	}
	return scanPartition(rows)
}

func scanPartition(rows pgx.Rows) (*Partition, error) {
	var p Partition
	if err := rows.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.ParentPartitionID, &p.Title, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
