package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teradata-labs/loom-gateway/internal/store"
)

type azureProvider struct {
	baseURL    string
	deployment string
	apiVersion string
	apiKey     string
	client     *http.Client
}

// newAzure requires all four Azure fields to already be present; the
// config resolver enforces that before a Provider is ever constructed
// (spec §4.3), but this constructor double-checks since provider.New can
// in principle be called directly in tests.
func newAzure(cfg store.ProviderConfig, client *http.Client) (*azureProvider, error) {
	if cfg.BaseURL == nil || *cfg.BaseURL == "" ||
		cfg.Deployment == nil || *cfg.Deployment == "" ||
		cfg.ApiVersion == nil || *cfg.ApiVersion == "" ||
		cfg.ApiKey == nil || *cfg.ApiKey == "" {
		return nil, errors.New("azure provider requires baseUrl, deployment, apiVersion, and apiKey")
	}
	return &azureProvider{
		baseURL:    strings.TrimRight(*cfg.BaseURL, "/"),
		deployment: *cfg.Deployment,
		apiVersion: *cfg.ApiVersion,
		apiKey:     *cfg.ApiKey,
		client:     client,
	}, nil
}

func (p *azureProvider) Name() string { return "azure" }

// Proxy rewrites URL and headers per spec §4.5's Azure-style rule:
// baseUrl + "/openai/deployments/" + deployment + "/chat/completions?api-version=" + apiVersion,
// header "api-key". Grounded on the URL construction and header-selection
// pattern of the teradata-labs/loom Azure OpenAI client (other_examples/).
func (p *azureProvider) Proxy(ctx context.Context, req Request) (*Response, error) {
	reqURL := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.baseURL, url.PathEscape(p.deployment), url.QueryEscape(p.apiVersion))

	headers := http.Header{}
	headers.Set("api-key", p.apiKey)
	headers.Set("Content-Type", "application/json")

	return doProxy(ctx, p.client, req.Method, reqURL, headers, req.Body, p.Name())
}
