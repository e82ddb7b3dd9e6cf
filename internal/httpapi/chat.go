// Package httpapi wires the data-plane chat-completions endpoint and the
// health check into Gin routes. Grounded on the teacher's
// internal/registry/handler package's "NewXHandler + Register(group)"
// shape (e.g. handler.AgentHandler).
package httpapi

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/authn"
	"github.com/teradata-labs/loom-gateway/internal/pipeline"
	"go.uber.org/zap"
)

// ChatHandler exposes POST /v1/chat/completions, the gateway's sole
// data-plane route (spec §4.1).
type ChatHandler struct {
	authenticator *authn.ApiKeyAuthenticator
	pipeline      *pipeline.Handler
	logger        *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(authenticator *authn.ApiKeyAuthenticator, p *pipeline.Handler, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{authenticator: authenticator, pipeline: p, logger: logger}
}

// Register attaches the chat-completions route to rg.
func (h *ChatHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/chat/completions", h.completions)
}

// completions authenticates the caller's API key and delegates the rest of
// the request to the pipeline (spec §4.2 step 1, §4.7).
func (h *ChatHandler) completions(c *gin.Context) {
	rawKey, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		apierror.Respond(c, apierror.New(apierror.KindUnauthorized, "missing or malformed Authorization header"))
		return
	}

	principal, err := h.authenticator.Authenticate(c.Request.Context(), rawKey)
	if err != nil {
		apierror.Respond(c, classifyAuthError(err))
		return
	}

	if err := h.pipeline.Handle(c, principal); err != nil {
		h.logger.Warn("chat completions request failed", zap.Error(err))
		apierror.Respond(c, err)
	}
}

// bearerToken extracts the raw credential from an "Authorization: Bearer
// <token>" header.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

// classifyAuthError maps authn's sentinel errors onto the apierror
// taxonomy (spec §7).
func classifyAuthError(err error) error {
	switch {
	case errors.Is(err, authn.ErrUnauthorized):
		return apierror.New(apierror.KindUnauthorized, "invalid or expired api key")
	case errors.Is(err, authn.ErrTenantSuspended):
		return apierror.New(apierror.KindTenantSuspended, "tenant is suspended")
	case errors.Is(err, context.Canceled):
		return apierror.New(apierror.KindInternal, "request canceled")
	default:
		return apierror.Wrap(apierror.KindInternal, "failed to authenticate request", err)
	}
}
