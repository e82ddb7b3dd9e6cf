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

// ErrAgentNotFound is returned when an agent lookup misses.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a named LLM configuration exclusively owned by a Tenant (spec §3).
type Agent struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	Name                  string
	Config                ConfigurableFields
	SystemPromptPolicy    SystemPromptPolicy
	SkillsPolicy          ListMergePolicy
	MCPEndpointsPolicy    ListMergePolicy
	ConversationsEnabled  bool
	ConversationTokenLimit int
	SummaryModel          *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AgentRepository persists Agent rows.
type AgentRepository struct {
	db *pgxpool.Pool
}

// NewAgentRepository builds an AgentRepository over the given pool.
func NewAgentRepository(db *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent, applying the documented defaults: prepend /
// merge / merge policies and a 4000-token conversation limit.
func (r *AgentRepository) Create(ctx context.Context, a *Agent) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}

	a.ID = newID()
	now := utcNow()
	a.CreatedAt, a.UpdatedAt = now, now

	if a.SystemPromptPolicy == "" {
		a.SystemPromptPolicy = SystemPromptPrepend
	}
	if a.SkillsPolicy == "" {
		a.SkillsPolicy = ListMergeMerge
	}
	if a.MCPEndpointsPolicy == "" {
		a.MCPEndpointsPolicy = ListMergeMerge
	}
	if a.ConversationTokenLimit == 0 {
		a.ConversationTokenLimit = 4000
	}

	const q = `
		INSERT INTO agents (
			id, tenant_id, name, config, system_prompt_policy, skills_policy,
			mcp_endpoints_policy, conversations_enabled, conversation_token_limit,
			summary_model, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.db.Exec(ctx, q,
		a.ID, a.TenantID, a.Name, cfg, a.SystemPromptPolicy, a.SkillsPolicy,
		a.MCPEndpointsPolicy, a.ConversationsEnabled, a.ConversationTokenLimit,
		a.SummaryModel, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// GetByID retrieves an agent by its id.
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Agent, error) {
	const q = baseAgentSelect + ` WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetByTenantAndName retrieves an agent by its tenant-unique name.
func (r *AgentRepository) GetByTenantAndName(ctx context.Context, tenantID uuid.UUID, name string) (*Agent, error) {
	const q = baseAgentSelect + ` WHERE tenant_id = $1 AND name = $2`
	return r.scanOne(ctx, q, tenantID, name)
}

// ListByTenant returns every agent owned by a tenant, newest first.
func (r *AgentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Agent, error) {
	const q = baseAgentSelect + ` WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateConfig overwrites the agent's configurable fields.
func (r *AgentRepository) UpdateConfig(ctx context.Context, id uuid.UUID, cfg ConfigurableFields) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	const q = `UPDATE agents SET config = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, q, raw, utcNow(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

const baseAgentSelect = `
	SELECT id, tenant_id, name, config, system_prompt_policy, skills_policy,
	       mcp_endpoints_policy, conversations_enabled, conversation_token_limit,
	       summary_model, created_at, updated_at
	FROM agents`

func (r *AgentRepository) scanOne(ctx context.Context, query string, args ...any) (*Agent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrAgentNotFound
	}
	return scanAgent(rows)
}

func scanAgent(rows pgx.Rows) (*Agent, error) {
	var a Agent
	var cfgRaw []byte
	err := rows.Scan(
		&a.ID, &a.TenantID, &a.Name, &cfgRaw, &a.SystemPromptPolicy, &a.SkillsPolicy,
		&a.MCPEndpointsPolicy, &a.ConversationsEnabled, &a.ConversationTokenLimit,
		&a.SummaryModel, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfgRaw) > 0 {
		if err := json.Unmarshal(cfgRaw, &a.Config); err != nil {
			return nil, fmt.Errorf("unmarshal agent config: %w", err)
		}
	}
	return &a, nil
}
