package portal

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// principalKey is the gin.Context key under which requireAuth stores the
// authenticated principal.
const principalKey = "portal.principal"

// principal is a portal-plane bearer token's resolved identity: which user,
// scoped to which tenant, holding which role (spec §4.2).
type principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     store.MembershipRole
}

// requireAuth verifies the `Authorization: Bearer <token>` header and
// stashes the resulting principal on the context for downstream handlers.
func (h *Handler) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "missing or malformed Authorization header"))
		return
	}

	claims, err := h.tokens.Verify(strings.TrimPrefix(header, prefix))
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "invalid or expired portal token"))
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "malformed token subject"))
		return
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "malformed token tenant"))
		return
	}

	c.Set(principalKey, &principal{
		UserID:   userID,
		TenantID: tenantID,
		Role:     store.NormalizeRole(store.MembershipRole(claims.Role)),
	})
	c.Next()
}

// currentPrincipal retrieves the principal requireAuth attached.
func currentPrincipal(c *gin.Context) *principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*principal)
	return p
}

// requireOwner rejects the request unless the authenticated principal holds
// the owner role in its token-scoped tenant (spec §3).
func (h *Handler) requireOwner(c *gin.Context) {
	p := currentPrincipal(c)
	if p == nil || p.Role != store.RoleOwner {
		apierror.Respond(c, apierror.New(apierror.KindForbidden, "owner role required"))
		return
	}
	c.Next()
}

// requireTenantMatch 403s unless pathTenantID equals the principal's own
// scoped tenant — the portal surface is scoped to one tenant per session,
// matching the teacher's single-org-per-token posture.
func requireTenantMatch(c *gin.Context, p *principal, tenantID uuid.UUID) bool {
	if p.TenantID != tenantID {
		apierror.Respond(c, apierror.New(apierror.KindForbidden, "token is not scoped to this tenant"))
		return false
	}
	return true
}

// parseUUIDParam reads a uuid.UUID path parameter, responding with
// KindInvalidRequest and returning ok=false on a malformed value.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed "+name))
		return uuid.Nil, false
	}
	return id, true
}

// parseUUIDParamString parses a uuid carried in a JSON request body field
// (as opposed to a path parameter) without writing a response itself,
// leaving the caller free to choose the error message.
func parseUUIDParamString(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
