package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/teradata-labs/loom-gateway/internal/store"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

type openAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newOpenAI(cfg store.ProviderConfig, client *http.Client) *openAIProvider {
	base := defaultOpenAIBaseURL
	if cfg.BaseURL != nil && *cfg.BaseURL != "" {
		base = strings.TrimRight(*cfg.BaseURL, "/")
	}
	apiKey := ""
	if cfg.ApiKey != nil {
		apiKey = *cfg.ApiKey
	}
	return &openAIProvider{baseURL: base, apiKey: apiKey, client: client}
}

func (p *openAIProvider) Name() string { return "openai" }

// Proxy rewrites URL and headers per spec §4.5's OpenAI-style rule:
// baseUrl + "/v1/chat/completions", Authorization: Bearer <apiKey>.
func (p *openAIProvider) Proxy(ctx context.Context, req Request) (*Response, error) {
	url := p.baseURL + "/v1/chat/completions"

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey)
	headers.Set("Content-Type", "application/json")

	return doProxy(ctx, p.client, req.Method, url, headers, req.Body, p.Name())
}
