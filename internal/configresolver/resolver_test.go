package configresolver

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

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
	var chain []*store.Tenant
	cur := id
	for {
		t, err := f.GetByID(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		if t.ParentTenantID == nil {
			return chain, nil
		}
		cur = *t.ParentTenantID
	}
}

func strp(s string) *string { return &s }

func TestResolverMonotonicity(t *testing.T) {
	tenantID := uuid.New()
	agentID := uuid.New()

	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{
		tenantID: {ID: tenantID, Name: "acme", Status: store.TenantActive},
	}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{
		agentID: {ID: agentID, TenantID: tenantID, Name: "support"},
	}}

	r := New(agents, tenants, "sk-fallback")

	before, err := r.ResolveForAgent(context.Background(), agentID)
	if err != nil {
		t.Fatalf("ResolveForAgent: %v", err)
	}
	if before.SystemPrompt != nil {
		t.Fatalf("expected nil system prompt before mutation, got %v", *before.SystemPrompt)
	}
	availableModelsBefore := before.AvailableModels

	tenants.byID[tenantID].Config.SystemPrompt = strp("be nice")

	after, err := r.ResolveForAgent(context.Background(), agentID)
	if err != nil {
		t.Fatalf("ResolveForAgent: %v", err)
	}
	if after.SystemPrompt == nil || *after.SystemPrompt != "be nice" {
		t.Fatalf("expected system prompt to pick up new tenant value, got %v", after.SystemPrompt)
	}
	if len(after.AvailableModels) != len(availableModelsBefore) {
		t.Fatal("unrelated field AvailableModels should not have changed")
	}
}

func TestResolverAgentOverridesTenant(t *testing.T) {
	tenantID := uuid.New()
	agentID := uuid.New()

	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{
		tenantID: {ID: tenantID, Name: "acme", Status: store.TenantActive, Config: store.ConfigurableFields{
			SystemPrompt: strp("tenant prompt"),
		}},
	}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{
		agentID: {ID: agentID, TenantID: tenantID, Name: "support", Config: store.ConfigurableFields{
			SystemPrompt: strp("agent prompt"),
		}},
	}}

	r := New(agents, tenants, "")
	eff, err := r.ResolveForAgent(context.Background(), agentID)
	if err != nil {
		t.Fatalf("ResolveForAgent: %v", err)
	}
	if eff.SystemPrompt == nil || *eff.SystemPrompt != "agent prompt" {
		t.Fatalf("expected nearest (agent) value to win, got %v", eff.SystemPrompt)
	}
}

func TestResolverSuspendedTenant(t *testing.T) {
	tenantID := uuid.New()
	agentID := uuid.New()

	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{
		tenantID: {ID: tenantID, Name: "acme", Status: store.TenantSuspended},
	}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{
		agentID: {ID: agentID, TenantID: tenantID, Name: "support"},
	}}

	r := New(agents, tenants, "")
	_, err := r.ResolveForAgent(context.Background(), agentID)
	if err != ErrTenantSuspended {
		t.Fatalf("expected ErrTenantSuspended, got %v", err)
	}
}

func TestResolverAzureRequiresAllFields(t *testing.T) {
	tenantID := uuid.New()
	agentID := uuid.New()

	tenants := &fakeTenants{byID: map[uuid.UUID]*store.Tenant{
		tenantID: {ID: tenantID, Name: "acme", Status: store.TenantActive, Config: store.ConfigurableFields{
			ProviderConfig: &store.ProviderConfig{Provider: store.ProviderAzure, ApiKey: strp("k")},
		}},
	}}
	agents := &fakeAgents{byID: map[uuid.UUID]*store.Agent{
		agentID: {ID: agentID, TenantID: tenantID, Name: "support"},
	}}

	r := New(agents, tenants, "")
	_, err := r.ResolveForAgent(context.Background(), agentID)
	if err == nil {
		t.Fatal("expected ProviderMisconfigured error for incomplete azure config")
	}
}
