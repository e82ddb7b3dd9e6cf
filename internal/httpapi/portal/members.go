package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type membershipResponse struct {
	ID       string               `json:"id"`
	UserID   string               `json:"userId"`
	TenantID string               `json:"tenantId"`
	Role     store.MembershipRole `json:"role"`
}

func newMembershipResponse(m *store.TenantMembership) membershipResponse {
	return membershipResponse{ID: m.ID.String(), UserID: m.UserID.String(), TenantID: m.TenantID.String(), Role: m.Role}
}

// listMembers returns every membership row for the path tenant.
func (h *Handler) listMembers(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	members, err := h.memberships.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list members", err))
		return
	}
	out := make([]membershipResponse, 0, len(members))
	for _, m := range members {
		out = append(out, newMembershipResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}

type setMemberRoleRequest struct {
	Role store.MembershipRole `json:"role" binding:"required"`
}

// setMemberRole changes a membership's role, refusing to demote the last
// remaining owner of a tenant away from the owner role (spec §8 property
// 10a: a tenant must always retain at least one owner).
func (h *Handler) setMemberRole(c *gin.Context) {
	membershipID, ok := parseUUIDParam(c, "membershipId")
	if !ok {
		return
	}

	var req setMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid role payload", err))
		return
	}
	role := store.NormalizeRole(req.Role)

	ctx := c.Request.Context()
	membership, err := h.memberships.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "membership not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load membership", err))
		return
	}

	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, membership.TenantID) {
		return
	}

	if membership.Role == store.RoleOwner && role != store.RoleOwner {
		count, err := h.memberships.CountOwners(ctx, membership.TenantID)
		if err != nil {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to count owners", err))
			return
		}
		if count <= 1 {
			apierror.Respond(c, apierror.New(apierror.KindConflict, "tenant must retain at least one owner"))
			return
		}
	}

	if err := h.memberships.SetRole(ctx, membershipID, role); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to update member role", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// removeMember deletes a membership, subject to the same last-owner
// protection as setMemberRole.
func (h *Handler) removeMember(c *gin.Context) {
	membershipID, ok := parseUUIDParam(c, "membershipId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	membership, err := h.memberships.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "membership not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load membership", err))
		return
	}

	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, membership.TenantID) {
		return
	}

	if membership.Role == store.RoleOwner {
		count, err := h.memberships.CountOwners(ctx, membership.TenantID)
		if err != nil {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to count owners", err))
			return
		}
		if count <= 1 {
			apierror.Respond(c, apierror.New(apierror.KindConflict, "tenant must retain at least one owner"))
			return
		}
	}

	if err := h.memberships.Delete(ctx, membershipID); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to remove member", err))
		return
	}
	c.Status(http.StatusNoContent)
}
