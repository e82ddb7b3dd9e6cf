package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type apiKeyResponse struct {
	ID            string             `json:"id"`
	AgentID       string             `json:"agentId"`
	Name          string             `json:"name"`
	DisplayPrefix string             `json:"displayPrefix"`
	Status        store.ApiKeyStatus `json:"status"`
}

func newApiKeyResponse(k *store.ApiKey) apiKeyResponse {
	return apiKeyResponse{ID: k.ID.String(), AgentID: k.AgentID.String(), Name: k.Name, DisplayPrefix: k.DisplayPrefix, Status: k.Status}
}

type createApiKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

type createApiKeyResponse struct {
	apiKeyResponse
	Key string `json:"key"`
}

// createApiKey mints a new data-plane credential for the path agent,
// returning the raw key exactly once (spec §3: "the raw key is never
// stored"); only KeyHash(raw) is persisted.
func (h *Handler) createApiKey(c *gin.Context) {
	agentID, ok := parseUUIDParam(c, "agentId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	agent, err := h.agents.GetByID(ctx, agentID)
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

	var req createApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid api key payload", err))
		return
	}

	raw, displayPrefix, err := cryptoutil.NewAPIKey()
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to mint api key", err))
		return
	}

	key := &store.ApiKey{
		AgentID: agentID, Name: req.Name, Hash: cryptoutil.KeyHash(raw), DisplayPrefix: displayPrefix,
	}
	if err := h.apikeys.Create(ctx, key); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to store api key", err))
		return
	}
	c.JSON(http.StatusCreated, createApiKeyResponse{apiKeyResponse: newApiKeyResponse(key), Key: raw})
}

// listApiKeys returns every key minted for the path agent, never including
// the raw secret (only the display prefix survives past minting).
func (h *Handler) listApiKeys(c *gin.Context) {
	agentID, ok := parseUUIDParam(c, "agentId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	agent, err := h.agents.GetByID(ctx, agentID)
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

	keys, err := h.apikeys.ListByAgent(ctx, agentID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list api keys", err))
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, newApiKeyResponse(k))
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": out})
}

// revokeApiKey immediately invalidates a key; revoked keys never
// authenticate again (spec §8 property 10b).
func (h *Handler) revokeApiKey(c *gin.Context) {
	apiKeyID, ok := parseUUIDParam(c, "apiKeyId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	key, err := h.apikeys.GetByID(ctx, apiKeyID)
	if err != nil {
		if errors.Is(err, store.ErrApiKeyNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "api key not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load api key", err))
		return
	}

	agent, err := h.agents.GetByID(ctx, key.AgentID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load agent", err))
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, agent.TenantID) {
		return
	}

	if err := h.apikeys.Revoke(ctx, apiKeyID); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to revoke api key", err))
		return
	}
	c.Status(http.StatusNoContent)
}
