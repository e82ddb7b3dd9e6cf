package portal

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// signupRequest creates a brand-new tenant owned by a brand-new user —
// the "first user of a new organization" path (spec §3). Joining an
// existing tenant goes through acceptInvite instead.
type signupRequest struct {
	TenantName string `json:"tenantName" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required,min=8"`
}

type authResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid signup payload", err))
		return
	}

	hash, err := cryptoutil.HashPassword(req.Password)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to hash password", err))
		return
	}

	ctx := c.Request.Context()
	user := &store.User{Email: strings.ToLower(req.Email), PasswordHash: hash}
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			apierror.Respond(c, apierror.New(apierror.KindConflict, "email already registered"))
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create user", err))
		return
	}

	tenant := &store.Tenant{Name: req.TenantName}
	if err := h.tenants.Create(ctx, tenant); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create tenant", err))
		return
	}

	membership := &store.TenantMembership{UserID: user.ID, TenantID: tenant.ID, Role: store.RoleOwner}
	if err := h.memberships.Create(ctx, membership); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create owner membership", err))
		return
	}

	token, err := h.tokens.Issue(user.ID.String(), tenant.ID.String(), string(store.RoleOwner))
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to issue portal token", err))
		return
	}
	c.JSON(http.StatusCreated, authResponse{Token: token, UserID: user.ID.String(), TenantID: tenant.ID.String(), Role: string(store.RoleOwner)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TenantID string `json:"tenantId" binding:"required"`
}

// login verifies a password and issues a token scoped to the tenant the
// caller asked for — a user may belong to several tenants, so the tenant
// to scope the session to is supplied explicitly (spec §3, §4.2).
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid login payload", err))
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "invalid email or password"))
		return
	}

	ok, err := cryptoutil.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil || !ok {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "invalid email or password"))
		return
	}

	tenantID, valid := parseUUIDParamString(req.TenantID)
	if !valid {
		apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed tenantId"))
		return
	}

	membership, err := h.memberships.Get(ctx, user.ID, tenantID)
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindForbidden, "user is not a member of this tenant"))
		return
	}

	token, err := h.tokens.Issue(user.ID.String(), tenantID.String(), string(membership.Role))
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to issue portal token", err))
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, UserID: user.ID.String(), TenantID: tenantID.String(), Role: string(membership.Role)})
}

type acceptInviteRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// acceptInvite redeems an invite token, creating the user if the email is
// new and a membership in the invite's tenant either way. Validity is
// checked, and the use count incremented, inside one transaction so a
// race against a concurrent redemption can't exceed max_uses (spec §8
// property 10c: reject before any side effect).
func (h *Handler) acceptInvite(c *gin.Context) {
	token := c.Param("token")
	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInvalidRequest, "invalid accept-invite payload", err))
		return
	}

	ctx := c.Request.Context()
	inv, err := h.invites.GetByToken(ctx, token)
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindNotFound, "invite not found"))
		return
	}
	if !inv.IsValid(time.Now().UTC()) {
		apierror.Respond(c, apierror.New(apierror.KindConflict, "invite is no longer valid"))
		return
	}

	email := strings.ToLower(req.Email)
	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to look up user", err))
			return
		}
		hash, hashErr := cryptoutil.HashPassword(req.Password)
		if hashErr != nil {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to hash password", hashErr))
			return
		}
		user = &store.User{Email: email, PasswordHash: hash}
		if err := h.users.Create(ctx, user); err != nil {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create user", err))
			return
		}
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to start transaction", err))
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, `SELECT use_count, revoked_at FROM invites WHERE id = $1 FOR UPDATE`, inv.ID).Scan(&inv.UseCount, &inv.RevokedAt); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to lock invite", err))
		return
	}
	if !inv.IsValid(time.Now().UTC()) {
		apierror.Respond(c, apierror.New(apierror.KindConflict, "invite is no longer valid"))
		return
	}
	if err := h.invites.IncrementUse(ctx, tx, inv.ID); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to redeem invite", err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to commit invite redemption", err))
		return
	}

	membership := &store.TenantMembership{UserID: user.ID, TenantID: inv.TenantID, Role: store.RoleMember}
	if err := h.memberships.Create(ctx, membership); err != nil {
		if !errors.Is(err, store.ErrAlreadyMember) {
			apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to create membership", err))
			return
		}
	}

	tokenStr, err := h.tokens.Issue(user.ID.String(), inv.TenantID.String(), string(store.RoleMember))
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to issue portal token", err))
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: tokenStr, UserID: user.ID.String(), TenantID: inv.TenantID.String(), Role: string(store.RoleMember)})
}
