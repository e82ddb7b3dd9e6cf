package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/authn"
	"github.com/teradata-labs/loom-gateway/internal/configresolver"
	"github.com/teradata-labs/loom-gateway/internal/mcpclient"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"github.com/teradata-labs/loom-gateway/internal/trace"
	"go.uber.org/zap"
)

// fakeAgentRepo satisfies AgentRepo for a single preloaded agent, so the
// non-conversation path can run without a database.
type fakeAgentRepo struct {
	agent *store.Agent
}

func (f *fakeAgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error) {
	return f.agent, nil
}

// fakeSink records trace events in memory instead of encrypting/persisting
// them, so assertions can inspect what Handle reported.
type fakeSink struct {
	mu     sync.Mutex
	events []trace.Event
}

func (f *fakeSink) Record(ev trace.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) Close(ctx context.Context) {}

func (f *fakeSink) last() (trace.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return trace.Event{}, false
	}
	return f.events[len(f.events)-1], true
}

func newTestHandler(t *testing.T, baseURL string) (*Handler, *fakeSink) {
	t.Helper()
	agent := &store.Agent{
		ID:                 uuid.New(),
		TenantID:           uuid.New(),
		Name:               "test-agent",
		SystemPromptPolicy: store.SystemPromptPrepend,
		SkillsPolicy:       store.ListMergeMerge,
		MCPEndpointsPolicy: store.ListMergeMerge,
	}
	repo := &fakeAgentRepo{agent: agent}
	sink := &fakeSink{}
	cache := provider.NewCache()
	h := New(repo, cache, nil, mcpclient.New(nil), sink, http.DefaultClient, zap.NewNop())
	return h, sink
}

func newPrincipal(agentID, tenantID uuid.UUID, baseURL string) *authn.RequestPrincipal {
	base := baseURL
	return &authn.RequestPrincipal{
		TenantID: tenantID,
		AgentID:  &agentID,
		Role:     store.RoleMember,
		Config: &configresolver.Effective{
			ConfigurableFields: store.ConfigurableFields{
				ProviderConfig: &store.ProviderConfig{Provider: store.ProviderOpenAI, BaseURL: &base},
			},
		},
	}
}

func TestHandleJSONHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer upstream.Close()

	h, sink := newTestHandler(t, upstream.URL)
	agentID, tenantID := uuid.New(), uuid.New()
	principal := newPrincipal(agentID, tenantID, upstream.URL)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))

	if err := h.Handle(c, principal); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(conversationHeader) != "" {
		t.Fatal("expected no conversation header when the agent has conversations disabled")
	}
	if !strings.Contains(w.Body.String(), "hello there") {
		t.Fatalf("expected upstream content in response body, got %s", w.Body.String())
	}

	ev, ok := sink.last()
	if !ok {
		t.Fatal("expected a trace event to be recorded")
	}
	if ev.StatusCode != http.StatusOK || ev.TotalTokens != 5 {
		t.Fatalf("unexpected trace event: %+v", ev)
	}
}

func TestHandlePassesThroughNon2xxStatusUnchanged(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	h, _ := newTestHandler(t, upstream.URL)
	agentID, tenantID := uuid.New(), uuid.New()
	principal := newPrincipal(agentID, tenantID, upstream.URL)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))

	if err := h.Handle(c, principal); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected upstream's 429 preserved verbatim, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rate limited") {
		t.Fatalf("expected upstream error body preserved, got %s", w.Body.String())
	}
}

func TestHandleUpstreamUnreachableMapsToUpstreamUnavailable(t *testing.T) {
	h, _ := newTestHandler(t, "http://127.0.0.1:1")
	agentID, tenantID := uuid.New(), uuid.New()
	principal := newPrincipal(agentID, tenantID, "http://127.0.0.1:1")

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))

	err := h.Handle(c, principal)
	if err == nil {
		t.Fatal("expected an error for an unreachable upstream")
	}
	apiErr, ok := err.(interface{ Status() int })
	if !ok {
		t.Fatalf("expected an *apierror.Error, got %T", err)
	}
	if apiErr.Status() != http.StatusBadGateway {
		t.Fatalf("expected 502 for unreachable upstream, got %d", apiErr.Status())
	}
}

func TestHandleSSEForwardsStreamVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	h, sink := newTestHandler(t, upstream.URL)
	agentID, tenantID := uuid.New(), uuid.New()
	principal := newPrincipal(agentID, tenantID, upstream.URL)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`))

	if err := h.Handle(c, principal); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "data: [DONE]") {
		t.Fatalf("expected SSE stream forwarded verbatim, got %s", w.Body.String())
	}
	if _, ok := sink.last(); !ok {
		t.Fatal("expected a trace event recorded for the SSE branch")
	}
}
