package portal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type inviteResponse struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Token     string     `json:"token"`
	MaxUses   *int       `json:"maxUses,omitempty"`
	UseCount  int        `json:"useCount"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

func newInviteResponse(inv *store.Invite) inviteResponse {
	return inviteResponse{
		ID: inv.ID.String(), TenantID: inv.TenantID.String(), Token: inv.Token,
		MaxUses: inv.MaxUses, UseCount: inv.UseCount, ExpiresAt: inv.ExpiresAt, RevokedAt: inv.RevokedAt,
	}
}

type createInviteRequest struct {
	MaxUses  *int `json:"maxUses,omitempty"`
	TTLHours int  `json:"ttlHours"`
}

// createInvite mints a fresh opaque invite token for the path tenant. A
// ttlHours of zero or less defaults to 72 hours.
func (h *Handler) createInvite(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid invite payload", err))
		return
	}
	ttl := time.Duration(req.TTLHours) * time.Hour
	if req.TTLHours <= 0 {
		ttl = 72 * time.Hour
	}

	token, err := store.NewInviteToken()
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to mint invite token", err))
		return
	}

	inv := &store.Invite{
		TenantID: tenantID, Token: token, MaxUses: req.MaxUses,
		ExpiresAt: time.Now().UTC().Add(ttl), CreatedBy: p.UserID,
	}
	if err := h.invites.Create(c.Request.Context(), inv); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create invite", err))
		return
	}
	c.JSON(http.StatusCreated, newInviteResponse(inv))
}

// revokeInvite immediately invalidates an invite token.
func (h *Handler) revokeInvite(c *gin.Context) {
	inviteID, ok := parseUUIDParam(c, "inviteId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	inv, err := h.invites.GetByID(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "invite not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to load invite", err))
		return
	}

	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, inv.TenantID) {
		return
	}

	if err := h.invites.Revoke(ctx, inviteID); err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "invite not found"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to revoke invite", err))
		return
	}
	c.Status(http.StatusNoContent)
}
