package authn

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/configresolver"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type fakeKeys struct {
	active map[string]*store.ApiKey
}

func (f *fakeKeys) GetActiveByHash(ctx context.Context, hash string) (*store.ApiKey, error) {
	k, ok := f.active[hash]
	if !ok {
		return nil, store.ErrApiKeyNotFound
	}
	return k, nil
}

type fakeAgents struct {
	byID map[uuid.UUID]*store.Agent
}

func (f *fakeAgents) GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	return a, nil
}

type fakeTenants struct {
	byID map[uuid.UUID]*store.Tenant
}

func (f *fakeTenants) GetByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, store.ErrTenantNotFound
	}
	return t, nil
}

func (f *fakeTenants) AncestorChain(ctx context.Context, id uuid.UUID) ([]*store.Tenant, error) {
	t, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return []*store.Tenant{t}, nil
}

func TestApiKeyAuthenticateRevokedKeyNeverAuthenticates(t *testing.T) {
	tenantID, agentID := uuid.New(), uuid.New()
	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{tenantID: {ID: tenantID, Status: store.TenantActive}}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{agentID: {ID: agentID, TenantID: tenantID, Name: "a"}}}
	keys := &fakeKeys{active: map[string]*store.ApiKey{}} // no active keys: simulates a revoked key

	resolver := configresolver.New(agents, tenants, "")
	a := NewApiKeyAuthenticator(keys, agents, tenants, resolver)

	_, err := a.Authenticate(context.Background(), "loom_sk_whatever")
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for revoked/unknown key, got %v", err)
	}
}

func TestApiKeyAuthenticateSuspendedTenant(t *testing.T) {
	tenantID, agentID := uuid.New(), uuid.New()
	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{tenantID: {ID: tenantID, Status: store.TenantSuspended}}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{agentID: {ID: agentID, TenantID: tenantID, Name: "a"}}}

	raw := "loom_sk_testkey"
	keys := &fakeKeys{active: map[string]*store.ApiKey{
		cryptoutil.KeyHash(raw): {AgentID: agentID, Status: store.ApiKeyActive},
	}}

	resolver := configresolver.New(agents, tenants, "")
	a := NewApiKeyAuthenticator(keys, agents, tenants, resolver)

	_, err := a.Authenticate(context.Background(), raw)
	if err != ErrTenantSuspended {
		t.Fatalf("expected ErrTenantSuspended, got %v", err)
	}
}

func TestPortalTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("super-secret"), "loom", time.Hour)

	token, err := issuer.Issue("user-1", "tenant-1", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.TenantID != "tenant-1" || claims.Role != "owner" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestPortalTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), "loom", time.Hour)
	token, err := issuer.Issue("user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewTokenIssuer([]byte("secret-b"), "loom", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Fatal("expected verification to fail under a different secret")
	}
}

func TestPortalTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), "loom", -time.Minute)
	token, err := issuer.Issue("user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}
