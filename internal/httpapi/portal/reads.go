package portal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

type partitionResponse struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenantId"`
	ExternalID        string  `json:"externalId"`
	ParentPartitionID *string `json:"parentPartitionId,omitempty"`
	Title             *string `json:"title,omitempty"`
}

func newPartitionResponse(p *store.Partition) partitionResponse {
	var parent *string
	if p.ParentPartitionID != nil {
		s := p.ParentPartitionID.String()
		parent = &s
	}
	return partitionResponse{ID: p.ID.String(), TenantID: p.TenantID.String(), ExternalID: p.ExternalID, ParentPartitionID: parent, Title: p.Title}
}

// listPartitions returns every partition in the path tenant.
func (h *Handler) listPartitions(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	partitions, err := h.partitions.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list partitions", err))
		return
	}
	out := make([]partitionResponse, 0, len(partitions))
	for _, pt := range partitions {
		out = append(out, newPartitionResponse(pt))
	}
	c.JSON(http.StatusOK, gin.H{"partitions": out})
}

type conversationResponse struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId"`
	AgentID      *string    `json:"agentId,omitempty"`
	PartitionID  *string    `json:"partitionId,omitempty"`
	ExternalID   string     `json:"externalId"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
}

func newConversationResponse(conv *store.Conversation) conversationResponse {
	var agentID, partitionID *string
	if conv.AgentID != nil {
		s := conv.AgentID.String()
		agentID = &s
	}
	if conv.PartitionID != nil {
		s := conv.PartitionID.String()
		partitionID = &s
	}
	return conversationResponse{
		ID: conv.ID.String(), TenantID: conv.TenantID.String(), AgentID: agentID, PartitionID: partitionID,
		ExternalID: conv.ExternalID, CreatedAt: conv.CreatedAt, LastActiveAt: conv.LastActiveAt,
	}
}

// listConversations returns every conversation in the path tenant, most
// recently active first.
func (h *Handler) listConversations(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	conversations, err := h.conversations.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list conversations", err))
		return
	}
	out := make([]conversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, newConversationResponse(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

type traceResponse struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenantId"`
	AgentID           *string `json:"agentId,omitempty"`
	Model             string  `json:"model"`
	Provider          string  `json:"provider"`
	StatusCode        int     `json:"statusCode"`
	LatencyMs         int     `json:"latencyMs"`
	PromptTokens      int     `json:"promptTokens"`
	CompletionTokens  int     `json:"completionTokens"`
	TotalTokens       int     `json:"totalTokens"`
	TTFBMs            int     `json:"ttfbMs"`
	GatewayOverheadMs int     `json:"gatewayOverheadMs"`
	CreatedAt         time.Time `json:"createdAt"`
	Request           string  `json:"request,omitempty"`
	Response          string  `json:"response,omitempty"`
}

// newTraceResponse renders metadata unconditionally and decrypts the
// request/response bodies only when a cipher is configured; without one the
// bodies are left out of the response.
func (h *Handler) newTraceResponse(t *store.Trace) traceResponse {
	var agentID *string
	if t.AgentID != nil {
		s := t.AgentID.String()
		agentID = &s
	}
	out := traceResponse{
		ID: t.ID.String(), TenantID: t.TenantID.String(), AgentID: agentID, Model: t.Model, Provider: t.Provider,
		StatusCode: t.StatusCode, LatencyMs: t.LatencyMs, PromptTokens: t.PromptTokens,
		CompletionTokens: t.CompletionTokens, TotalTokens: t.TotalTokens, TTFBMs: t.TTFBMs,
		GatewayOverheadMs: t.GatewayOverheadMs, CreatedAt: t.CreatedAt,
	}
	if h.cipher == nil {
		return out
	}
	ad := t.TenantID[:]
	if plain, err := h.cipher.Decrypt(t.RequestCiphertext, t.RequestIV, ad); err == nil {
		out.Request = string(plain)
	}
	if plain, err := h.cipher.Decrypt(t.ResponseCiphertext, t.ResponseIV, ad); err == nil {
		out.Response = string(plain)
	}
	return out
}

// listTraces returns a page of traces for the path tenant, newest first,
// cursor-paginated by the `before` query parameter (RFC3339 timestamp).
func (h *Handler) listTraces(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed before cursor"))
			return
		}
		before = &t
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed limit"))
			return
		}
		limit = n
	}

	traces, err := h.traces.ListByTenant(c.Request.Context(), tenantID, before, limit)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to list traces", err))
		return
	}
	out := make([]traceResponse, 0, len(traces))
	for _, t := range traces {
		out = append(out, h.newTraceResponse(t))
	}

	var next *string
	if len(traces) > 0 {
		cursor := traces[len(traces)-1].CreatedAt.Format(time.RFC3339Nano)
		next = &cursor
	}
	c.JSON(http.StatusOK, gin.H{"traces": out, "nextBefore": next})
}

// traceAggregate returns request-volume and token-usage totals for a
// tenant over a [from, to) window (query params, RFC3339). Defaults to the
// trailing 24 hours when omitted.
func (h *Handler) traceAggregate(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "tenantId")
	if !ok {
		return
	}
	p := currentPrincipal(c)
	if !requireTenantMatch(c, p, tenantID) {
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed from"))
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.Respond(c, apierror.New(apierror.KindInvalidRequest, "malformed to"))
			return
		}
		to = t
	}

	agg, err := h.traces.Aggregate(c.Request.Context(), tenantID, from, to)
	if err != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "failed to aggregate traces", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from": from, "to": to,
		"requestCount":        agg.RequestCount,
		"totalPromptTokens":   agg.TotalPromptTok,
		"totalCompletionTokens": agg.TotalCompletionT,
		"avgLatencyMs":        agg.AvgLatencyMs,
	})
}
