package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teradata-labs/loom-gateway/internal/mcpclient"
	"github.com/teradata-labs/loom-gateway/internal/provider"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

// fakeProvider lets the tests in this file script the upstream's
// response per call without standing up a full provider.Provider dialect.
type fakeProvider struct {
	name      string
	responses []*provider.Response
	calls     int
	gotBodies [][]byte
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Proxy(ctx context.Context, req provider.Request) (*provider.Response, error) {
	f.gotBodies = append(f.gotBodies, req.Body)
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func jsonResponse(status int, body string) *provider.Response {
	return &provider.Response{Status: status, Headers: http.Header{"Content-Type": []string{"application/json"}}, Body: []byte(body)}
}

func TestMCPRoundTripCallsEndpointAndResendsOnce(t *testing.T) {
	mcpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Params.Name != "get_weather" {
			t.Errorf("expected get_weather, got %q", req.Params.Name)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":"sunny"}`))
	}))
	defer mcpSrv.Close()

	firstResp := jsonResponse(200, `{"choices":[{"message":{"role":"assistant","tool_calls":[
		{"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}
	]}}]}`)
	secondResp := jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"it's sunny"}}]}`)
	prov := &fakeProvider{name: "openai", responses: []*provider.Response{secondResp}}

	h := &Handler{mcp: mcpclient.New(nil), logger: zap.NewNop()}
	endpoints := []store.MCPEndpoint{{Name: "get_weather", URL: mcpSrv.URL}}

	final, didRoundTrip := h.mcpRoundTrip(context.Background(), prov, endpoints, []byte(`{"model":"gpt-4o","messages":[]}`), firstResp, h.logger)
	if !didRoundTrip {
		t.Fatal("expected a round trip to occur")
	}
	if prov.calls != 1 {
		t.Fatalf("expected exactly one follow-up provider call, got %d", prov.calls)
	}
	parsed, err := parseChatResponse(final.Body)
	if err != nil {
		t.Fatalf("parseChatResponse: %v", err)
	}
	if parsed.assistantContent() != "it's sunny" {
		t.Fatalf("expected final response content, got %q", parsed.assistantContent())
	}
}

func TestMCPRoundTripNoToolCallsIsNoop(t *testing.T) {
	resp := jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	prov := &fakeProvider{name: "openai", responses: []*provider.Response{resp}}
	h := &Handler{mcp: mcpclient.New(nil), logger: zap.NewNop()}

	final, didRoundTrip := h.mcpRoundTrip(context.Background(), prov, []store.MCPEndpoint{{Name: "x", URL: "http://unused"}}, []byte(`{}`), resp, h.logger)
	if didRoundTrip {
		t.Fatal("expected no round trip when response carries no tool_calls")
	}
	if final != resp {
		t.Fatal("expected the original response returned unchanged")
	}
}

func TestMCPRoundTripUnmatchedToolNameIsNoop(t *testing.T) {
	resp := jsonResponse(200, `{"choices":[{"message":{"role":"assistant","tool_calls":[
		{"id":"call_1","function":{"name":"unconfigured_tool","arguments":"{}"}}
	]}}]}`)
	prov := &fakeProvider{name: "openai", responses: []*provider.Response{resp}}
	h := &Handler{mcp: mcpclient.New(nil), logger: zap.NewNop()}

	_, didRoundTrip := h.mcpRoundTrip(context.Background(), prov, []store.MCPEndpoint{{Name: "get_weather", URL: "http://unused"}}, []byte(`{}`), resp, h.logger)
	if didRoundTrip {
		t.Fatal("expected no round trip for a tool name with no configured endpoint")
	}
}

func TestMCPRoundTripEndpointFailureKeepsOriginalResponse(t *testing.T) {
	resp := jsonResponse(200, `{"choices":[{"message":{"role":"assistant","tool_calls":[
		{"id":"call_1","function":{"name":"get_weather","arguments":"{}"}}
	]}}]}`)
	prov := &fakeProvider{name: "openai", responses: []*provider.Response{resp}}
	h := &Handler{mcp: mcpclient.New(nil), logger: zap.NewNop()}

	final, didRoundTrip := h.mcpRoundTrip(context.Background(), prov, []store.MCPEndpoint{{Name: "get_weather", URL: "http://127.0.0.1:1"}}, []byte(`{}`), resp, h.logger)
	if didRoundTrip {
		t.Fatal("expected round trip to report failure")
	}
	if final != resp {
		t.Fatal("expected original response preserved on mcp endpoint failure")
	}
}
