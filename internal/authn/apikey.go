package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/configresolver"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// ErrTenantSuspended is returned when the owning tenant is not active
// (spec §4.2, §7).
var ErrTenantSuspended = errors.New("tenant suspended")

// ApiKeyRepo is the narrow read surface ApiKeyAuthenticator needs,
// satisfied by *store.ApiKeyRepository.
type ApiKeyRepo interface {
	GetActiveByHash(ctx context.Context, hash string) (*store.ApiKey, error)
}

// TenantRepo is the narrow read surface ApiKeyAuthenticator needs,
// satisfied by *store.TenantRepository.
type TenantRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error)
}

// AgentRepo is the narrow read surface ApiKeyAuthenticator needs,
// satisfied by *store.AgentRepository.
type AgentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error)
}

// ApiKeyAuthenticator verifies data-plane `Authorization: Bearer <raw-key>`
// credentials and resolves a RequestPrincipal (spec §4.2).
type ApiKeyAuthenticator struct {
	keys     ApiKeyRepo
	agents   AgentRepo
	tenants  TenantRepo
	resolver *configresolver.Resolver
}

// NewApiKeyAuthenticator builds an ApiKeyAuthenticator.
func NewApiKeyAuthenticator(keys ApiKeyRepo, agents AgentRepo, tenants TenantRepo, resolver *configresolver.Resolver) *ApiKeyAuthenticator {
	return &ApiKeyAuthenticator{keys: keys, agents: agents, tenants: tenants, resolver: resolver}
}

// Authenticate verifies rawKey and builds the resulting RequestPrincipal,
// per spec §4.2's data-plane steps: hash lookup, active-key check, owning
// agent/tenant fetch, suspended-tenant check, config resolve.
func (a *ApiKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*RequestPrincipal, error) {
	hash := cryptoutil.KeyHash(rawKey)

	key, err := a.keys.GetActiveByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrApiKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	agent, err := a.agents.GetByID(ctx, key.AgentID)
	if err != nil {
		return nil, fmt.Errorf("load owning agent: %w", err)
	}

	tenant, err := a.tenants.GetByID(ctx, agent.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load owning tenant: %w", err)
	}
	if tenant.Status != store.TenantActive {
		return nil, ErrTenantSuspended
	}

	eff, err := a.resolver.ResolveForAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	return &RequestPrincipal{
		TenantID: tenant.ID,
		AgentID:  &agent.ID,
		Config:   eff,
	}, nil
}
