// Package portal implements the thin portal-plane command surface of
// spec.md §2/§6: tenant, agent, membership, invite, and api-key lifecycle
// management, plus read-only partition/conversation/trace endpoints. Per
// SPEC_FULL.md §3 this exists only so the rest of the gateway has a real
// external collaborator to resolve against — it carries no business logic
// beyond what spec.md §3/§4 already name.
//
// Grounded on the teacher's internal/registry/handler package: one Handler
// struct per concern area in the teacher, consolidated here into a single
// Handler since the portal surface is deliberately thin (SPEC_FULL.md §2).
package portal

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teradata-labs/loom-gateway/internal/authn"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

// Handler serves every portal-plane route.
type Handler struct {
	db            *pgxpool.Pool
	tenants       *store.TenantRepository
	agents        *store.AgentRepository
	users         *store.UserRepository
	memberships   *store.MembershipRepository
	invites       *store.InviteRepository
	apikeys       *store.ApiKeyRepository
	partitions    *store.PartitionRepository
	conversations *store.ConversationRepository
	traces        *store.TraceRepository
	cipher        *cryptoutil.Cipher
	tokens        *authn.TokenIssuer
	providers     *provider.Cache
	logger        *zap.Logger
}

// New builds a portal Handler. cipher may be nil, in which case trace
// bodies are not decrypted for display (the response still reports
// metadata: status, latency, token counts). providers may be nil in tests
// that never mutate provider config.
func New(
	db *pgxpool.Pool,
	tenants *store.TenantRepository,
	agents *store.AgentRepository,
	users *store.UserRepository,
	memberships *store.MembershipRepository,
	invites *store.InviteRepository,
	apikeys *store.ApiKeyRepository,
	partitions *store.PartitionRepository,
	conversations *store.ConversationRepository,
	traces *store.TraceRepository,
	cipher *cryptoutil.Cipher,
	tokens *authn.TokenIssuer,
	providers *provider.Cache,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		db: db, tenants: tenants, agents: agents, users: users,
		memberships: memberships, invites: invites, apikeys: apikeys,
		partitions: partitions, conversations: conversations, traces: traces,
		cipher: cipher, tokens: tokens, providers: providers, logger: logger,
	}
}

// evictProvider drops tenantID's cached provider instance, if a cache was
// supplied (spec §4.2, §4.5: "evictProvider(tenantId) is called whenever a
// tenant's provider-config is mutated").
func (h *Handler) evictProvider(tenantID uuid.UUID) {
	if h.providers != nil {
		h.providers.Evict(tenantID)
	}
}

// Register attaches every portal route to rg (e.g. router.Group("/portal/v1")).
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/signup", h.signup)
	rg.POST("/auth/login", h.login)
	rg.POST("/invites/:token/accept", h.acceptInvite)

	authed := rg.Group("/")
	authed.Use(h.requireAuth)

	authed.GET("/tenants/:tenantId", h.getTenant)
	authed.PATCH("/tenants/:tenantId/config", h.requireOwner, h.updateTenantConfig)
	authed.POST("/tenants/:tenantId/suspend", h.requireOwner, h.suspendTenant)
	authed.POST("/tenants/:tenantId/reactivate", h.requireOwner, h.reactivateTenant)

	authed.GET("/tenants/:tenantId/agents", h.listAgents)
	authed.POST("/tenants/:tenantId/agents", h.requireOwner, h.createAgent)
	authed.GET("/agents/:agentId", h.getAgent)
	authed.PATCH("/agents/:agentId/config", h.requireOwner, h.updateAgentConfig)

	authed.GET("/tenants/:tenantId/members", h.listMembers)
	authed.PATCH("/memberships/:membershipId/role", h.requireOwner, h.setMemberRole)
	authed.DELETE("/memberships/:membershipId", h.requireOwner, h.removeMember)

	authed.POST("/tenants/:tenantId/invites", h.requireOwner, h.createInvite)
	authed.DELETE("/invites/:inviteId", h.requireOwner, h.revokeInvite)

	authed.POST("/agents/:agentId/api-keys", h.requireOwner, h.createApiKey)
	authed.GET("/agents/:agentId/api-keys", h.listApiKeys)
	authed.DELETE("/api-keys/:apiKeyId", h.requireOwner, h.revokeApiKey)

	authed.GET("/tenants/:tenantId/partitions", h.listPartitions)
	authed.GET("/tenants/:tenantId/conversations", h.listConversations)
	authed.GET("/tenants/:tenantId/traces", h.listTraces)
	authed.GET("/tenants/:tenantId/traces/aggregate", h.traceAggregate)
}
