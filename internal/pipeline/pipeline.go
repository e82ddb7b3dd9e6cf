// Package pipeline implements the request pipeline of spec §4.7: the
// single orchestration point that ties configuration resolution, merge
// policy, conversation memory, the upstream provider, the MCP round trip
// and the trace recorder together into one POST /v1/chat/completions
// handler. This is the one component holding the real engineering content
// of the gateway — every other package exists to be composed here.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/apierror"
	"github.com/teradata-labs/loom-gateway/internal/authn"
	"github.com/teradata-labs/loom-gateway/internal/convo"
	"github.com/teradata-labs/loom-gateway/internal/mcpclient"
	"github.com/teradata-labs/loom-gateway/internal/merge"
	"github.com/teradata-labs/loom-gateway/internal/metrics"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"github.com/teradata-labs/loom-gateway/internal/trace"
	"go.uber.org/zap"
)

// AgentRepo is the narrow read surface Handler needs to load an agent's
// merge policies and conversation settings, satisfied by
// *store.AgentRepository.
type AgentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error)
}

// Handler composes every other package into the request pipeline of spec
// §4.7.
type Handler struct {
	agents     AgentRepo
	providers  *provider.Cache
	convo      *convo.Manager
	mcp        *mcpclient.Client
	sink       trace.Sink
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Handler.
func New(agents AgentRepo, providers *provider.Cache, convoMgr *convo.Manager, mcp *mcpclient.Client, sink trace.Sink, httpClient *http.Client, logger *zap.Logger) *Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Handler{agents: agents, providers: providers, convo: convoMgr, mcp: mcp, sink: sink, httpClient: httpClient, logger: logger}
}

// conversationRef names the conversation a request is attached to, both by
// its gateway-internal row id (used to append messages) and its external,
// caller-facing id (used for the response header/body and future requests).
type conversationRef struct {
	internalID uuid.UUID
	externalID string
}

// Handle implements spec §4.7's numbered steps for one chat-completions
// request. Any returned error is an *apierror.Error ready for
// apierror.Respond; once the upstream call has started, failures on
// secondary paths (MCP, summarisation, trace, message storage) are logged
// and swallowed rather than surfaced, per spec §4.7 step 7 and §4.9.
func (h *Handler) Handle(c *gin.Context, principal *authn.RequestPrincipal) error {
	requestStart := time.Now()
	ctx := c.Request.Context()

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apierror.Wrap(apierror.KindInvalidRequest, "failed to read request body", err)
	}
	body, err := parseChatBody(rawBody)
	if err != nil {
		return apierror.Wrap(apierror.KindInvalidRequest, "request body must be valid JSON", err)
	}

	if principal.AgentID == nil {
		return apierror.New(apierror.KindForbidden, "chat completions requires an agent-scoped api key")
	}
	agent, err := h.agents.GetByID(ctx, *principal.AgentID)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "failed to load agent", err)
	}

	eff := principal.Config
	if eff == nil || eff.ProviderConfig == nil {
		return apierror.New(apierror.KindProviderMisconfigured, "no provider configuration resolved for this agent")
	}
	providerCfg := *eff.ProviderConfig

	prov, err := h.providers.GetOrBuild(principal.TenantID, func() (provider.Provider, error) {
		return provider.New(providerCfg, h.httpClient)
	})
	if err != nil {
		return apierror.Wrap(apierror.KindProviderMisconfigured, "failed to construct upstream provider", err)
	}

	// Capture the caller's own turn before conversation memory prepends any
	// reconstructed history ahead of it — the fire-and-forget append stores
	// only this request's new turn, not the whole reconstructed context.
	callerUserText := joinUserMessages(body.messages())

	// step 2: pull the gateway-only fields off the wire body.
	conversationID := body.popString("conversation_id")
	partitionID := body.popString("partition_id")

	var conv *conversationRef
	if agent.ConversationsEnabled {
		conv, err = h.applyConversationMemory(ctx, prov, agent, body, principal.TenantID, principal.AgentID, conversationID, partitionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "failed to apply conversation memory", err)
		}
	}

	// step 3: apply the agent's merge policies.
	merged := merge.ApplySystemPrompt(agent.SystemPromptPolicy, eff.SystemPrompt, body.messages())
	body.setMessages(merged)

	callerTools, callerDefs := body.tools()
	mergedTools := merge.ApplySkills(agent.SkillsPolicy, eff.Skills, callerTools)
	body.setTools(mergedTools, callerDefs, eff.Skills)

	// No inbound representation of caller-supplied MCP endpoints exists in
	// a chat-completions body; the policy still governs whether the
	// agent's configured endpoints are active for this request at all
	// (e.g. an "ignore" policy disables the MCP round trip entirely).
	activeEndpoints := merge.ApplyMCPEndpoints(agent.MCPEndpointsPolicy, eff.MCPEndpoints, nil)

	outgoing, err := body.marshal()
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "failed to serialise outgoing request", err)
	}

	// step 4-5: proxy to the upstream provider, timing the call.
	upstreamStart := time.Now()
	gatewayOverheadMs := int(upstreamStart.Sub(requestStart).Milliseconds())

	resp, err := prov.Proxy(ctx, provider.Request{Method: http.MethodPost, Headers: http.Header{}, Body: outgoing})
	if err != nil {
		metrics.RecordProviderProxy(prov.Name(), "error", time.Since(upstreamStart).Seconds())
		return apierror.Wrap(apierror.KindUpstreamUnavailable, "failed to reach upstream provider", err)
	}

	if resp.IsSSE() {
		return h.handleSSE(c, sseRequest{
			principal:         principal,
			agent:             agent,
			prov:              prov,
			resp:              resp,
			requestStart:      requestStart,
			upstreamStart:     upstreamStart,
			gatewayOverheadMs: gatewayOverheadMs,
			conv:              conv,
			callerUserText:    callerUserText,
			outgoing:          outgoing,
		})
	}
	return h.handleJSON(c, jsonRequest{
		ctx:               ctx,
		principal:         principal,
		agent:             agent,
		prov:              prov,
		resp:              resp,
		requestStart:      requestStart,
		upstreamStart:     upstreamStart,
		gatewayOverheadMs: gatewayOverheadMs,
		conv:              conv,
		activeEndpoints:   activeEndpoints,
		outgoing:          outgoing,
		callerUserText:    callerUserText,
	})
}

// applyConversationMemory implements spec §4.6/§4.7's conversation steps:
// materialise partition/conversation, load context, summarise if the token
// budget is exceeded, and prepend the reconstructed context ahead of the
// caller's own messages.
func (h *Handler) applyConversationMemory(ctx context.Context, prov provider.Provider, agent *store.Agent, body *chatBody, tenantID uuid.UUID, agentID *uuid.UUID, conversationID, partitionID *string) (*conversationRef, error) {
	var partID *uuid.UUID
	if partitionID != nil {
		part, err := h.convo.GetOrCreatePartition(ctx, tenantID, *partitionID, nil)
		if err != nil {
			h.logger.Warn("failed to materialise partition, continuing without one", zap.Error(err))
		} else {
			partID = &part.ID
		}
	}

	externalID := uuid.New().String()
	if conversationID != nil {
		externalID = *conversationID
	}

	convRow, err := h.convo.GetOrCreateConversation(ctx, tenantID, partID, externalID, agentID)
	if err != nil {
		return nil, err
	}

	loaded, err := h.convo.LoadContext(ctx, convRow.ID, tenantID)
	if err != nil {
		return nil, err
	}

	if convo.NeedsSnapshot(loaded.TokenEstimate, agent.ConversationTokenLimit) {
		summary, sumErr := h.summarize(ctx, prov, agent, loaded, body.model())
		if sumErr != nil {
			h.logger.Warn("conversation summarisation failed, continuing with full context", zap.Error(sumErr))
		} else if _, snapErr := h.convo.CreateSnapshot(ctx, convRow.ID, tenantID, summary, len(loaded.Messages)); snapErr != nil {
			h.logger.Warn("failed to persist conversation snapshot", zap.Error(snapErr))
		} else {
			metrics.RecordSnapshotCreated()
			if reloaded, reloadErr := h.convo.LoadContext(ctx, convRow.ID, tenantID); reloadErr == nil {
				loaded = reloaded
			}
		}
	}

	injected := h.convo.BuildInjectionMessages(*loaded)
	callerMessages := body.messages()
	body.setMessages(append(contextToChat(injected), callerMessages...))

	return &conversationRef{internalID: convRow.ID, externalID: externalID}, nil
}

// contextToChat converts reconstructed conversation context back into the
// merge package's typed message view, ready to prepend to the caller's own
// messages.
func contextToChat(msgs []convo.ContextMessage) []merge.ChatMessage {
	out := make([]merge.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, merge.ChatMessage{Role: string(m.Role), Content: m.Text})
	}
	return out
}

// joinUserMessages concatenates every user-role message's content, used as
// the "user turn" half of the fire-and-forget conversation append (spec
// §4.6: StoreMessages takes one user text and one assistant text).
func joinUserMessages(msgs []merge.ChatMessage) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == "user" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// recordTrace builds and enqueues a trace.Event. Never returns an error:
// trace.Sink.Record is itself non-blocking and best-effort (spec §4.9).
func (h *Handler) recordTrace(principal *authn.RequestPrincipal, model, providerName string, reqBody, respBody []byte, status int, latencyMs, ttfbMs, gatewayOverheadMs int, usage usageTokens) {
	h.sink.Record(trace.Event{
		TenantID:          principal.TenantID,
		AgentID:           principal.AgentID,
		Model:             model,
		Provider:          providerName,
		RequestPlaintext:  reqBody,
		ResponsePlaintext: respBody,
		StatusCode:        status,
		LatencyMs:         latencyMs,
		PromptTokens:      usage.prompt,
		CompletionTokens:  usage.completion,
		TotalTokens:       usage.total,
		TTFBMs:            ttfbMs,
		GatewayOverheadMs: gatewayOverheadMs,
	})
}

// storeTurn fires off the conversation append in the background, detached
// from the request context so a client disconnect can't cancel the write
// (spec §4.6: "may fail silently (log and continue)").
func (h *Handler) storeTurn(tenantID uuid.UUID, conv *conversationRef, userText, assistantText string) {
	if conv == nil || assistantText == "" {
		return
	}
	go h.convo.StoreMessages(context.Background(), conv.internalID, tenantID, userText, assistantText, nil, nil)
}
