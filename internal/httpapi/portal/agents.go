package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type agentResponse struct {
	ID                     string                   `json:"id"`
	TenantID               string                   `json:"tenantId"`
	Name                   string                   `json:"name"`
	Config                 store.ConfigurableFields `json:"config"`
	SystemPromptPolicy     store.SystemPromptPolicy `json:"systemPromptPolicy"`
	SkillsPolicy           store.ListMergePolicy    `json:"skillsPolicy"`
	MCPEndpointsPolicy     store.ListMergePolicy    `json:"mcpEndpointsPolicy"`
	ConversationsEnabled   bool                     `json:"conversationsEnabled"`
	ConversationTokenLimit int                      `json:"conversationTokenLimit"`
	SummaryModel           *string                  `json:"summaryModel,omitempty"`
}

func newAgentResponse(a *store.Agent) agentResponse {
	return agentResponse{
		ID: a.ID.String(), TenantID: a.TenantID.String(), Name: a.Name, Config: a.Config,
		SystemPromptPolicy: a.SystemPromptPolicy, SkillsPolicy: a.SkillsPolicy,
		MCPEndpointsPolicy: a.MCPEndpointsPolicy, ConversationsEnabled: a.ConversationsEnabled,
		ConversationTokenLimit: a.ConversationTokenLimit, SummaryModel: a.SummaryModel,
	}
}

// listAgents returns every agent owned by the tenant named in the path
// (spec §3: "Tenant exclusively owns its Agents", derived by indexed
// lookup rather than a stored back-reference, per spec §9).
func (h *Handler) listAgents(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	agents, err := h.agents.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list agents", err))
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, newAgentResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

type createAgentRequest struct {
	Name                   string                     `json:"name" binding:"required"`
	Config                 store.ConfigurableFields   `json:"config"`
	SystemPromptPolicy     store.SystemPromptPolicy   `json:"systemPromptPolicy"`
	SkillsPolicy           store.ListMergePolicy      `json:"skillsPolicy"`
	MCPEndpointsPolicy     store.ListMergePolicy      `json:"mcpEndpointsPolicy"`
	ConversationsEnabled   bool                       `json:"conversationsEnabled"`
	ConversationTokenLimit int                        `json:"conversationTokenLimit"`
	SummaryModel           *string                    `json:"summaryModel,omitempty"`
}

// createAgent creates a new agent owned by the path tenant, applying the
// documented defaults (spec §3: prepend/merge/merge, 4000-token limit) when
// the caller omits a policy.
func (h *Handler) createAgent(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid agent payload", err))
		return
	}

	agent := &store.Agent{
		TenantID: tenantID, Name: req.Name, Config: req.Config,
		SystemPromptPolicy: req.SystemPromptPolicy, SkillsPolicy: req.SkillsPolicy,
		MCPEndpointsPolicy: req.MCPEndpointsPolicy, ConversationsEnabled: req.ConversationsEnabled,
		ConversationTokenLimit: req.ConversationTokenLimit, SummaryModel: req.SummaryModel,
	}
	if err := h.agents.Create(c.Request.Context(), agent); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create agent", err))
		return
	}
	c.JSON(http.StatusCreated, newAgentResponse(agent))
}

// getAgent returns a single agent, scoped to the caller's own tenant.
func (h *Handler) getAgent(c *gin.Context) {
	agentID, ok := parseUUIDParam(c, "agentId")
	if !ok {
		return
	}

	agent, err := h.agents.GetByID(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "agent not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load agent", err))
		return
	}

	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, agent.TenantID) {
		return
	}
	c.JSON(http.StatusOK, newAgentResponse(agent))
}

// updateAgentConfig overwrites an agent's configurable fields. Like
// updateTenantConfig, this evicts the tenant's cached provider client since
// an agent-level provider override is part of what the cached client is
// built from (spec §4.2, §4.5).
func (h *Handler) updateAgentConfig(c *gin.Context) {
	agentID, ok := parseUUIDParam(c, "agentId")
	if !ok {
		return
	}

	agent, err := h.agents.GetByID(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "agent not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load agent", err))
		return
	}

	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, agent.TenantID) {
		return
	}

	var cfg store.ConfigurableFields
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid config payload", err))
		return
	}

	if err := h.agents.UpdateConfig(c.Request.Context(), agentID, cfg); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to update agent config", err))
		return
	}
	h.evictProvider(agent.TenantID)
	c.Status(http.StatusNoContent)
}
