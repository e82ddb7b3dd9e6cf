package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/authn"
	"github.com/teradata-labs/loom-gateway/internal/metrics"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// conversationHeader carries the gateway-minted conversation id back to the
// caller regardless of response shape (spec §4.7 step 6).
const conversationHeader = "X-Loom-Conversation-ID"

type jsonRequest struct {
	ctx               context.Context
	principal         *authn.RequestPrincipal
	agent             *store.Agent
	prov              provider.Provider
	resp              *provider.Response
	requestStart      time.Time
	upstreamStart     time.Time
	gatewayOverheadMs int
	conv              *conversationRef
	activeEndpoints   []store.MCPEndpoint
	outgoing          []byte
	callerUserText    string
}

// handleJSON implements spec §4.7 step 6's JSON branch: an optional
// single-shot MCP round trip on tool_calls, trace recording, fire-and-forget
// message storage, and conversation-id attachment, before writing the
// upstream status/body through unchanged (a non-2xx upstream status is
// never rewritten, per spec §4.5 step 3 and §7).
func (h *Handler) handleJSON(c *gin.Context, r jsonRequest) error {
	metrics.RecordProviderProxy(r.prov.Name(), statusClass(r.resp.Status), time.Since(r.upstreamStart).Seconds())

	finalResp := r.resp
	if r.resp.Status >= 200 && r.resp.Status < 300 {
		if second, didRoundTrip := h.mcpRoundTrip(r.ctx, r.prov, r.activeEndpoints, r.outgoing, r.resp, h.logger); didRoundTrip {
			finalResp = second
		}
	}

	latencyMs := int(time.Since(r.requestStart).Milliseconds())

	var usage usageTokens
	var assistantText string
	if finalResp.Status >= 200 && finalResp.Status < 300 {
		if parsed, err := parseChatResponse(finalResp.Body); err == nil {
			usage = parsed.usage()
			assistantText = parsed.assistantContent()
		}
	}

	model := ""
	if parsedReq, err := parseChatBody(r.outgoing); err == nil {
		model = parsedReq.model()
	}

	h.recordTrace(r.principal, model, r.prov.Name(), r.outgoing, finalResp.Body, finalResp.Status, latencyMs, latencyMs, r.gatewayOverheadMs, usage)
	h.storeTurn(r.principal.TenantID, r.conv, r.callerUserText, assistantText)

	for key, values := range finalResp.Headers {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}

	outBody := finalResp.Body
	if r.conv != nil {
		c.Writer.Header().Set(conversationHeader, r.conv.externalID)
		if finalResp.Status >= 200 && finalResp.Status < 300 {
			if patched, err := attachConversationMeta(finalResp.Body, r.conv.externalID); err == nil {
				outBody = patched
			}
		}
	}

	c.Data(finalResp.Status, "application/json", outBody)
	return nil
}

// attachConversationMeta patches conversation_id onto a JSON response body
// (spec §4.7 step 6).
func attachConversationMeta(body []byte, conversationID string) ([]byte, error) {
	parsed, err := parseChatBody(body)
	if err != nil {
		return nil, err
	}
	parsed.attachConversationMeta(&conversationID, nil)
	return parsed.marshal()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

type sseRequest struct {
	principal         *authn.RequestPrincipal
	agent             *store.Agent
	prov              provider.Provider
	resp              *provider.Response
	requestStart      time.Time
	upstreamStart     time.Time
	gatewayOverheadMs int
	conv              *conversationRef
	callerUserText    string
	outgoing          []byte
}

// handleSSE implements spec §4.7 step 6's SSE branch: forward the upstream
// event stream byte-for-byte while accumulating the assistant's streamed
// content for trace capture and fire-and-forget storage (grounded on
// internal/pipeline/sse.go's teeSSE). A client disconnect aborts the
// upstream read and still flushes a partial trace (spec §4.7, §8).
func (h *Handler) handleSSE(c *gin.Context, r sseRequest) error {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	if r.conv != nil {
		c.Writer.Header().Set(conversationHeader, r.conv.externalID)
	}
	c.Writer.WriteHeader(r.resp.Status)

	flusher, _ := c.Writer.(http.Flusher)
	result := teeSSE(c.Request.Context(), c.Writer, flusher, r.resp.Stream, r.upstreamStart)

	metrics.RecordProviderProxy(r.prov.Name(), statusClass(r.resp.Status), time.Since(r.upstreamStart).Seconds())

	status := r.resp.Status
	if result.disconnected {
		status = 499
	}
	latencyMs := int(time.Since(r.requestStart).Milliseconds())

	model := ""
	if parsedReq, err := parseChatBody(r.outgoing); err == nil {
		model = parsedReq.model()
	}

	h.recordTrace(r.principal, model, r.prov.Name(), r.outgoing, []byte(result.assistantText), status, latencyMs, result.ttfbMs, r.gatewayOverheadMs, usageTokens{})
	h.storeTurn(r.principal.TenantID, r.conv, r.callerUserText, result.assistantText)

	return nil
}
