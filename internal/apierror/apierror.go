// Package apierror implements the error-kind taxonomy of spec §7 and its
// mapping onto HTTP status codes and the `{"error":{"message","type"}}`
// JSON envelope the gateway returns for every non-passthrough failure.
package apierror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind enumerates the error kinds of spec §7 (names, not Go type names).
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindTenantSuspended       Kind = "tenant_suspended"
	KindAgentMisconfigured    Kind = "agent_misconfigured"
	KindProviderMisconfigured Kind = "provider_misconfigured"
	KindUpstreamUnavailable   Kind = "upstream_unavailable"
	KindInternal              Kind = "internal"
)

// kindMeta carries the HTTP status and the OpenAI-style `type` string a
// Kind renders as. spec §7's two worked examples are
// {Unauthorized -> 401, type: "invalid_request_error"} (S6) and
// {Internal -> 500, type: "server_error"} (§4.5 step 7); the remaining
// 4xx kinds follow the same "invalid_request_error" family per OpenAI's
// own convention of not enumerating a distinct type per 4xx cause.
var kindMeta = map[Kind]struct {
	status int
	typ    string
}{
	KindInvalidRequest:        {http.StatusBadRequest, "invalid_request_error"},
	KindUnauthorized:          {http.StatusUnauthorized, "invalid_request_error"},
	KindForbidden:             {http.StatusForbidden, "invalid_request_error"},
	KindNotFound:              {http.StatusNotFound, "invalid_request_error"},
	KindConflict:              {http.StatusConflict, "invalid_request_error"},
	KindTenantSuspended:       {http.StatusForbidden, "invalid_request_error"},
	KindAgentMisconfigured:    {http.StatusBadRequest, "invalid_request_error"},
	KindProviderMisconfigured: {http.StatusBadRequest, "invalid_request_error"},
	KindUpstreamUnavailable:   {http.StatusBadGateway, "upstream_error"},
	KindInternal:              {http.StatusInternalServerError, "server_error"},
}

// Error is a Kind carrying a human-readable message, wrapping an optional
// underlying cause for logging (never exposed in the response body).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, attaching cause for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Status returns the HTTP status code for e's kind.
func (e *Error) Status() int {
	return kindMeta[e.Kind].status
}

// Type returns the response body's `type` string for e's kind.
func (e *Error) Type() string {
	return kindMeta[e.Kind].typ
}

// envelope is the wire shape of spec §7: `{"error":{"message","type"}}`.
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Respond writes err's status and JSON envelope to c, aborting the chain.
// If err does not unwrap to *Error, it is treated as Internal (spec §7:
// "all other failures abort the pipeline").
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Wrap(KindInternal, "internal server error", err)
	}
	c.AbortWithStatusJSON(apiErr.Status(), envelope{Error: envelopeBody{
		Message: apiErr.Message,
		Type:    apiErr.Type(),
	}})
}
