package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected auth token to be forwarded, got %q", r.Header.Get("Authorization"))
		}
		var body rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Method != "tools/call" {
			t.Errorf("expected method tools/call, got %q", body.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":"42 degrees"}`))
	}))
	defer srv.Close()

	c := New(nil)
	tok := "tok"
	result, err := c.Call(context.Background(), srv.URL, &tok, ToolCall{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != `"42 degrees"` {
		t.Fatalf("expected raw JSON result string, got %q", result)
	}
}

func TestCallRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"tool failed"}}`))
	}))
	defer srv.Close()

	c := New(nil)
	_, err := c.Call(context.Background(), srv.URL, nil, ToolCall{Name: "broken"})
	if err == nil {
		t.Fatal("expected an error when the endpoint reports an rpc error")
	}
}

func TestCallNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(nil)
	_, err := c.Call(context.Background(), srv.URL, nil, ToolCall{Name: "x"})
	if err == nil {
		t.Fatal("expected an error for a non-2xx mcp endpoint response")
	}
}

func TestCallNoAuthTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header when authToken is nil, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":"ok"}`))
	}))
	defer srv.Close()

	c := New(nil)
	if _, err := c.Call(context.Background(), srv.URL, nil, ToolCall{Name: "x"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
}
