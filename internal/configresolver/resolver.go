// Package configresolver walks an agent's tenant-ancestor chain and merges
// each level's configurable fields into a single effective configuration
// (spec §4.3).
package configresolver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// ErrProviderMisconfigured is returned when the effective provider config is
// missing required credentials for its declared kind.
var ErrProviderMisconfigured = errors.New("provider misconfigured")

// ErrTenantSuspended is returned by ResolveForAgent when the agent's owning
// tenant is not active. The status of ancestor tenants is not checked.
var ErrTenantSuspended = errors.New("tenant suspended")

// ChainLink names one level of the inheritance walk, for debugging (spec
// §4.3: "an ordered inheritance chain (level name + entity name + id)").
type ChainLink struct {
	Level string // "agent", "tenant", or "parent_tenant"
	Name  string
	ID    uuid.UUID
}

// Effective is the resolved configuration plus the chain that produced it.
type Effective struct {
	store.ConfigurableFields
	Chain []ChainLink
}

// AgentRepo and TenantRepo are the narrow read surfaces the resolver needs,
// satisfied by *store.AgentRepository and *store.TenantRepository.
type AgentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error)
}

type TenantRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error)
	AncestorChain(ctx context.Context, id uuid.UUID) ([]*store.Tenant, error)
}

// Resolver produces effective configurations from an agent id or tenant id.
type Resolver struct {
	agents       AgentRepo
	tenants      TenantRepo
	openAIAPIKey string // OPENAI_API_KEY env fallback, spec §4.3
}

// New builds a Resolver. openAIAPIKeyFallback is read once at startup from
// the OPENAI_API_KEY environment variable (spec §6).
func New(agents AgentRepo, tenants TenantRepo, openAIAPIKeyFallback string) *Resolver {
	return &Resolver{agents: agents, tenants: tenants, openAIAPIKey: openAIAPIKeyFallback}
}

// NewFromEnv is a convenience constructor reading OPENAI_API_KEY directly.
func NewFromEnv(agents AgentRepo, tenants TenantRepo) *Resolver {
	return New(agents, tenants, os.Getenv("OPENAI_API_KEY"))
}

// ResolveForAgent walks Agent → Tenant → ancestor tenants → root, merging
// non-null fields nearest-wins, then applies provider-credential resolution
// (spec §4.3).
func (r *Resolver) ResolveForAgent(ctx context.Context, agentID uuid.UUID) (*Effective, error) {
	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}

	eff := &Effective{}
	eff.Chain = append(eff.Chain, ChainLink{Level: "agent", Name: agent.Name, ID: agent.ID})
	mergeNonNull(&eff.ConfigurableFields, agent.Config)

	tenantChain, err := r.tenants.AncestorChain(ctx, agent.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant chain: %w", err)
	}
	if len(tenantChain) == 0 {
		return nil, fmt.Errorf("agent %s has no owning tenant", agentID)
	}
	if tenantChain[0].Status != store.TenantActive {
		return nil, ErrTenantSuspended
	}

	for i, t := range tenantChain {
		level := "tenant"
		if i > 0 {
			level = "parent_tenant"
		}
		eff.Chain = append(eff.Chain, ChainLink{Level: level, Name: t.Name, ID: t.ID})
		mergeNonNull(&eff.ConfigurableFields, t.Config)
	}

	if err := r.resolveProviderCredentials(eff); err != nil {
		return nil, err
	}
	return eff, nil
}

// ResolveForTenant produces an effective configuration rooted at a tenant
// directly (the admin-read path named in spec §4.3), skipping the agent
// level entirely.
func (r *Resolver) ResolveForTenant(ctx context.Context, tenantID uuid.UUID) (*Effective, error) {
	tenantChain, err := r.tenants.AncestorChain(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant chain: %w", err)
	}

	eff := &Effective{}
	for i, t := range tenantChain {
		level := "tenant"
		if i > 0 {
			level = "parent_tenant"
		}
		eff.Chain = append(eff.Chain, ChainLink{Level: level, Name: t.Name, ID: t.ID})
		mergeNonNull(&eff.ConfigurableFields, t.Config)
	}

	if err := r.resolveProviderCredentials(eff); err != nil {
		return nil, err
	}
	return eff, nil
}

// resolveProviderCredentials implements spec §4.3's provider credential
// rules: openai falls back to the environment default api key; azure
// requires all four fields present.
func (r *Resolver) resolveProviderCredentials(eff *Effective) error {
	pc := eff.ProviderConfig
	if pc == nil {
		return nil
	}

	switch pc.Provider {
	case store.ProviderOpenAI:
		if pc.ApiKey == nil || *pc.ApiKey == "" {
			if r.openAIAPIKey == "" {
				return fmt.Errorf("%w: no openai api key configured and no OPENAI_API_KEY fallback", ErrProviderMisconfigured)
			}
			fallback := r.openAIAPIKey
			pc.ApiKey = &fallback
		}
	case store.ProviderAzure:
		if pc.ApiKey == nil || *pc.ApiKey == "" ||
			pc.BaseURL == nil || *pc.BaseURL == "" ||
			pc.Deployment == nil || *pc.Deployment == "" ||
			pc.ApiVersion == nil || *pc.ApiVersion == "" {
			return fmt.Errorf("%w: azure provider requires apiKey, endpoint, deployment, and apiVersion", ErrProviderMisconfigured)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrProviderMisconfigured, pc.Provider)
	}
	return nil
}

// mergeNonNull folds src's non-null fields into dst wherever dst's field is
// still unset — nearest-non-null-wins applied field-by-field (spec §4.3).
// Callers walk leaf-to-root, so the first (nearest) non-null value for a
// field wins and later (more distant) values are ignored.
func mergeNonNull(dst *store.ConfigurableFields, src store.ConfigurableFields) {
	if dst.ProviderConfig == nil && src.ProviderConfig != nil {
		dst.ProviderConfig = src.ProviderConfig
	}
	if dst.SystemPrompt == nil && src.SystemPrompt != nil {
		dst.SystemPrompt = src.SystemPrompt
	}
	if dst.Skills == nil && src.Skills != nil {
		dst.Skills = src.Skills
	}
	if dst.MCPEndpoints == nil && src.MCPEndpoints != nil {
		dst.MCPEndpoints = src.MCPEndpoints
	}
	if dst.AvailableModels == nil && src.AvailableModels != nil {
		dst.AvailableModels = src.AvailableModels
	}
}
