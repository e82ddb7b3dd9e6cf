package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

func newSeedCmd() *cobra.Command {
	var email, password, tenantName, agentName string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "create a demo tenant, owner user, agent, and api key for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(resolveDBURL(cmd), email, password, tenantName, agentName)
		},
	}
	cmd.Flags().StringVar(&email, "email", "owner@example.com", "owner user email")
	cmd.Flags().StringVar(&password, "password", "loom_dev_password", "owner user password")
	cmd.Flags().StringVar(&tenantName, "tenant", "Demo Tenant", "tenant display name")
	cmd.Flags().StringVar(&agentName, "agent", "demo-agent", "agent name")
	return cmd
}

// runSeed materialises the minimum graph needed to exercise the data plane
// locally: a tenant, its owner user and membership, one agent, and one
// active api key, printing the raw key exactly once (it is never stored).
func runSeed(dbURL, email, password, tenantName, agentName string) error {
	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	fmt.Println("connected to database")

	users := store.NewUserRepository(db)
	tenants := store.NewTenantRepository(db)
	memberships := store.NewMembershipRepository(db)
	agents := store.NewAgentRepository(db)
	apikeys := store.NewApiKeyRepository(db)

	hash, err := cryptoutil.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := &store.User{Email: email, PasswordHash: hash}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("  user    %s  password: %s\n", user.Email, password)

	tenant := &store.Tenant{Name: tenantName}
	if err := tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	fmt.Printf("  tenant  %s  (%s)\n", tenant.Name, tenant.ID)

	membership := &store.TenantMembership{UserID: user.ID, TenantID: tenant.ID, Role: store.RoleOwner}
	if err := memberships.Create(ctx, membership); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}

	agent := &store.Agent{TenantID: tenant.ID, Name: agentName}
	if err := agents.Create(ctx, agent); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	fmt.Printf("  agent   %s  (%s)\n", agent.Name, agent.ID)

	raw, displayPrefix, err := cryptoutil.NewAPIKey()
	if err != nil {
		return fmt.Errorf("mint api key: %w", err)
	}
	key := &store.ApiKey{AgentID: agent.ID, Name: "seed key", Hash: cryptoutil.KeyHash(raw), DisplayPrefix: displayPrefix}
	if err := apikeys.Create(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	fmt.Printf("  api key %s  (shown once, store it now)\n", raw)

	fmt.Println("\nseed complete")
	return nil
}
