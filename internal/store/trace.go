package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Trace is an append-only, encrypted record of one proxied request/response
// (spec §3). Never mutated after insert.
type Trace struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	AgentID           *uuid.UUID
	Model             string
	Provider          string
	RequestCiphertext []byte
	RequestIV         []byte
	ResponseCiphertext []byte
	ResponseIV        []byte
	StatusCode        int
	LatencyMs         int
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	TTFBMs            int
	GatewayOverheadMs int
	CreatedAt         time.Time
}

// TraceRepository persists Trace rows in batches, called only from the
// background drainer in internal/trace (spec §4.9) — never synchronously
// from the request path.
type TraceRepository struct {
	db *pgxpool.Pool
}

// NewTraceRepository builds a TraceRepository over the given pool.
func NewTraceRepository(db *pgxpool.Pool) *TraceRepository {
	return &TraceRepository{db: db}
}

// InsertBatch appends a batch of trace rows in a single round trip using
// pgx's batch protocol. Traces are append-only: failures on the whole
// batch are reported to the caller, which is responsible for the
// drop-oldest accounting (spec §4.9).
func (r *TraceRepository) InsertBatch(ctx context.Context, traces []*Trace) error {
	if len(traces) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO traces (
			id, tenant_id, agent_id, model, provider,
			request_ciphertext, request_iv, response_ciphertext, response_iv,
			status_code, latency_ms, prompt_tokens, completion_tokens, total_tokens,
			ttfb_ms, gateway_overhead_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	for _, t := range traces {
		if t.ID == uuid.Nil {
			t.ID = newID()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = utcNow()
		}
		batch.Queue(q,
			t.ID, t.TenantID, t.AgentID, t.Model, t.Provider,
			t.RequestCiphertext, t.RequestIV, t.ResponseCiphertext, t.ResponseIV,
			t.StatusCode, t.LatencyMs, t.PromptTokens, t.CompletionTokens, t.TotalTokens,
			t.TTFBMs, t.GatewayOverheadMs, t.CreatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range traces {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListByTenant returns traces for a tenant in descending creation order,
// paginated by a `before` timestamp cursor (only rows created strictly
// before it; nil for the first page), for the portal's trace-read surface
// (spec §6).
func (r *TraceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, before *time.Time, limit int) ([]*Trace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
		SELECT id, tenant_id, agent_id, model, provider,
		       request_ciphertext, request_iv, response_ciphertext, response_iv,
		       status_code, latency_ms, prompt_tokens, completion_tokens, total_tokens,
		       ttfb_ms, gateway_overhead_ms, created_at
		FROM traces
		WHERE tenant_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := r.db.Query(ctx, q, tenantID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trace
	for rows.Next() {
		var t Trace
		err := rows.Scan(&t.ID, &t.TenantID, &t.AgentID, &t.Model, &t.Provider,
			&t.RequestCiphertext, &t.RequestIV, &t.ResponseCiphertext, &t.ResponseIV,
			&t.StatusCode, &t.LatencyMs, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens,
			&t.TTFBMs, &t.GatewayOverheadMs, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// WindowAggregate summarises request volume and token usage for a tenant
// over [from, to), backing the portal's windowed aggregate reads (spec §6).
// This is a single query, not a materialised analytics layer — analytics
// aggregation is explicitly out of core scope (spec §1).
type WindowAggregate struct {
	RequestCount     int
	TotalPromptTok   int64
	TotalCompletionT int64
	AvgLatencyMs     float64
}

// Aggregate computes a WindowAggregate for a tenant over [from, to).
func (r *TraceRepository) Aggregate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*WindowAggregate, error) {
	const q = `
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(AVG(latency_ms), 0)
		FROM traces
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`
	var agg WindowAggregate
	err := r.db.QueryRow(ctx, q, tenantID, from, to).Scan(
		&agg.RequestCount, &agg.TotalPromptTok, &agg.TotalCompletionT, &agg.AvgLatencyMs,
	)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
