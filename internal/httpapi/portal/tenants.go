package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type tenantResponse struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	ParentTenantID *string                  `json:"parentTenantId,omitempty"`
	Status         store.TenantStatus       `json:"status"`
	Config         store.ConfigurableFields `json:"config"`
}

func newTenantResponse(t *store.Tenant) tenantResponse {
	var parent *string
	if t.ParentTenantID != nil {
		s := t.ParentTenantID.String()
		parent = &s
	}
	return tenantResponse{ID: t.ID.String(), Name: t.Name, ParentTenantID: parent, Status: t.Status, Config: t.Config}
}

// getTenant returns a tenant's own row (spec §6 portal tree). Any member of
// the tenant may read it.
func (h *Handler) getTenant(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	tenant, err := h.tenants.GetByID(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "tenant not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load tenant", err))
		return
	}
	c.JSON(http.StatusOK, newTenantResponse(tenant))
}

// updateTenantConfig overwrites a tenant's configurable fields (spec §3,
// §4.3). Mutating provider config invalidates the cached provider client
// for this tenant (spec §4.2, §4.5).
func (h *Handler) updateTenantConfig(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	var cfg store.ConfigurableFields
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid config payload", err))
		return
	}

	if err := h.tenants.UpdateConfig(c.Request.Context(), tenantID, cfg); err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "tenant not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to update tenant config", err))
		return
	}
	h.evictProvider(tenantID)
	c.Status(http.StatusNoContent)
}

// suspendTenant transitions a tenant out of the data plane (spec §3: "only
// active tenants participate in the data plane").
func (h *Handler) suspendTenant(c *gin.Context) {
	h.setTenantStatus(c, store.TenantSuspended)
}

// reactivateTenant transitions a suspended tenant back to active.
func (h *Handler) reactivateTenant(c *gin.Context) {
	h.setTenantStatus(c, store.TenantActive)
}

func (h *Handler) setTenantStatus(c *gin.Context, status store.TenantStatus) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	if err := h.tenants.SetStatus(c.Request.Context(), tenantID, status); err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "tenant not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to update tenant status", err))
		return
	}
	h.evictProvider(tenantID)
	c.Status(http.StatusNoContent)
}
