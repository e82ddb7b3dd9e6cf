package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/teradata-labs/loom-gateway/internal/metrics"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

// mcpRoundTrip implements spec §4.8's single-shot tool-call round trip: if
// the provider's JSON response carries tool_calls matching a configured MCP
// endpoint, call each endpoint once, append the results as tool messages,
// and re-send through the same provider exactly once. On any failure along
// this path the original response is returned unchanged and the failure is
// logged, never surfaced to the caller (spec §4.8: "at most one round trip
// per request; never iterate").
func (h *Handler) mcpRoundTrip(ctx context.Context, prov provider.Provider, endpoints []store.MCPEndpoint, sentBody []byte, resp *provider.Response, logger *zap.Logger) (*provider.Response, bool) {
	if len(endpoints) == 0 {
		return resp, false
	}

	parsed, err := parseChatResponse(resp.Body)
	if err != nil {
		logger.Warn("mcp: failed to parse provider response", zap.Error(err))
		return resp, false
	}
	calls := parsed.toolCalls()
	if len(calls) == 0 {
		return resp, false
	}

	byName := make(map[string]store.MCPEndpoint, len(endpoints))
	for _, e := range endpoints {
		byName[e.Name] = e
	}

	var matched bool
	for _, c := range calls {
		if _, ok := byName[c.Name]; ok {
			matched = true
			break
		}
	}
	if !matched {
		return resp, false
	}

	var bodyMap map[string]any
	if err := json.Unmarshal(sentBody, &bodyMap); err != nil {
		logger.Warn("mcp: failed to parse outgoing body for round trip", zap.Error(err))
		metrics.RecordMCPRoundTrip(false)
		return resp, false
	}
	msgs, _ := bodyMap["messages"].([]any)

	if assistantMsg, ok := parsed.firstMessage(); ok {
		msgs = append(msgs, assistantMsg)
	}

	for _, call := range calls {
		ep, ok := byName[call.Name]
		if !ok {
			continue
		}
		result, err := h.mcp.Call(ctx, ep.URL, ep.AuthToken, call)
		if err != nil {
			logger.Warn("mcp round trip failed", zap.String("tool", call.Name), zap.Error(err))
			metrics.RecordMCPRoundTrip(false)
			return resp, false
		}
		msgs = append(msgs, map[string]any{
			"role":         "tool",
			"tool_call_id": call.ID,
			"content":      result,
		})
	}
	bodyMap["messages"] = msgs

	followUp, err := json.Marshal(bodyMap)
	if err != nil {
		logger.Warn("mcp: failed to marshal follow-up body", zap.Error(err))
		metrics.RecordMCPRoundTrip(false)
		return resp, false
	}

	second, err := prov.Proxy(ctx, provider.Request{Method: http.MethodPost, Headers: http.Header{}, Body: followUp})
	if err != nil {
		logger.Warn("mcp: follow-up provider call failed", zap.Error(err))
		metrics.RecordMCPRoundTrip(false)
		return resp, false
	}
	if second.IsSSE() {
		_ = second.Stream.Close()
		logger.Warn("mcp: follow-up provider call unexpectedly returned a streaming response")
		metrics.RecordMCPRoundTrip(false)
		return resp, false
	}

	metrics.RecordMCPRoundTrip(true)
	return second, true
}
