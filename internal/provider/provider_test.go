package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

func strp(s string) *string { return &s }

func TestOpenAIProxyURLAndHeaders(t *testing.T) {
	var gotURL, gotAuth, gotAPIKeyHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAPIKeyHeader = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := newOpenAI(store.ProviderConfig{BaseURL: strp(srv.URL), ApiKey: strp("secret-key")}, srv.Client())
	resp, err := p.Proxy(context.Background(), Request{Method: http.MethodPost, Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if gotURL != "/v1/chat/completions" {
		t.Fatalf("expected /v1/chat/completions, got %q", gotURL)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("expected Authorization: Bearer secret-key, got %q", gotAuth)
	}
	if gotAPIKeyHeader != "" {
		t.Fatalf("expected no api-key header for openai, got %q", gotAPIKeyHeader)
	}
}

func TestAzureProxyURLAndHeaders(t *testing.T) {
	var gotURL, gotAuth, gotAPIKeyHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		gotAPIKeyHeader = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := store.ProviderConfig{
		BaseURL:    strp(srv.URL),
		Deployment: strp("gpt4-dep"),
		ApiVersion: strp("2024-10-21"),
		ApiKey:     strp("azure-key"),
	}
	p, err := newAzure(cfg, srv.Client())
	if err != nil {
		t.Fatalf("newAzure: %v", err)
	}

	resp, err := p.Proxy(context.Background(), Request{Method: http.MethodPost, Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if gotURL != "/openai/deployments/gpt4-dep/chat/completions?api-version=2024-10-21" {
		t.Fatalf("unexpected url: %q", gotURL)
	}
	if gotAPIKeyHeader != "azure-key" {
		t.Fatalf("expected api-key header azure-key, got %q", gotAPIKeyHeader)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header for azure, got %q", gotAuth)
	}
}

func TestProxyPassesThroughNon2xxVerbatim(t *testing.T) {
	for _, status := range []int{401, 429, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"boom"}`))
		}))

		p := newOpenAI(store.ProviderConfig{BaseURL: strp(srv.URL), ApiKey: strp("k")}, srv.Client())
		resp, err := p.Proxy(context.Background(), Request{Method: http.MethodPost, Body: []byte(`{}`)})
		if err != nil {
			t.Fatalf("Proxy: %v", err)
		}
		if resp.Status != status {
			t.Fatalf("expected status %d passed through, got %d", status, resp.Status)
		}
		if string(resp.Body) != `{"error":"boom"}` {
			t.Fatalf("expected verbatim body, got %q", resp.Body)
		}
		srv.Close()
	}
}

func TestProxyNetworkFailureIsUpstreamUnavailable(t *testing.T) {
	p := newOpenAI(store.ProviderConfig{BaseURL: strp("http://127.0.0.1:1"), ApiKey: strp("k")}, http.DefaultClient)
	_, err := p.Proxy(context.Background(), Request{Method: http.MethodPost, Body: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected error for unreachable upstream")
	}
}

func TestProviderCacheEvict(t *testing.T) {
	c := NewCache()
	id := uuid.New()

	calls := 0
	build := func() (Provider, error) {
		calls++
		return newOpenAI(store.ProviderConfig{ApiKey: strp("k")}, http.DefaultClient), nil
	}

	if _, err := c.GetOrBuild(id, build); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrBuild(id, build); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected build to run once before eviction, ran %d times", calls)
	}

	c.Evict(id)
	if _, err := c.GetOrBuild(id, build); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected build to re-run after eviction, ran %d times", calls)
	}
}
