package authn

import (
	"errors"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/configresolver"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// ErrUnauthorized is returned for a missing/invalid credential or expired
// token (spec §7).
var ErrUnauthorized = errors.New("unauthorized")

// RequestPrincipal is the shared post-condition of both authentication
// surfaces (spec §4.2): tenantId, optional agentId, role, and the resolved
// effective configuration.
type RequestPrincipal struct {
	TenantID uuid.UUID
	AgentID  *uuid.UUID
	Role     store.MembershipRole
	Config   *configresolver.Effective
}
