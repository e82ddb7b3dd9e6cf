// Package provider implements the dual-mode upstream proxy contract of
// spec §4.5: a single interface over OpenAI-style and Azure-deployment-style
// chat-completions endpoints.
package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/store"
)

// ErrUpstreamUnavailable wraps any network-level failure reaching the
// upstream provider (spec §4.5, §7).
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Request carries everything proxy needs to perform an upstream call.
type Request struct {
	Method  string
	Headers http.Header
	Body    []byte
}

// Response carries the upstream result. Exactly one of Body or Stream is
// set, selected by the upstream Content-Type (spec §4.5 step 2).
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte      // set when Content-Type is application/json or anything else
	Stream  io.ReadCloser // set when Content-Type is text/event-stream; caller must Close it
}

// IsSSE reports whether this response is a streaming SSE body.
func (r *Response) IsSSE() bool { return r.Stream != nil }

// Provider is the single contract both upstream dialects satisfy.
type Provider interface {
	// Name identifies the provider for tracing, e.g. "openai" or "azure".
	Name() string
	// Proxy rewrites URL/headers per dialect, performs the upstream call,
	// and classifies the response by Content-Type (spec §4.5).
	Proxy(ctx context.Context, req Request) (*Response, error)
}

// New builds the Provider implementation matching cfg.Provider.
func New(cfg store.ProviderConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Provider {
	case store.ProviderOpenAI:
		return newOpenAI(cfg, httpClient), nil
	case store.ProviderAzure:
		return newAzure(cfg, httpClient)
	default:
		return nil, errors.New("unknown provider kind")
	}
}

// Cache is a process-wide, tenant-id-keyed cache of Provider instances
// (spec §4.2, §4.5). Grounded on internal/resolver/cache.go's mutex-guarded
// map shape; TTL-based expiry is dropped in favor of explicit invalidation,
// since provider credentials change only on an admin-plane mutation, not on
// a timer.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Provider
}

// NewCache builds an empty provider Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uuid.UUID]Provider)}
}

// GetOrBuild returns the cached provider for tenantID, building and storing
// one via build() on a miss.
func (c *Cache) GetOrBuild(tenantID uuid.UUID, build func() (Provider, error)) (Provider, error) {
	c.mu.RLock()
	p, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[tenantID] = p
	c.mu.Unlock()
	return p, nil
}

// Evict removes tenantID's cached provider. Must be called whenever a
// tenant's provider-config mutates (spec §4.2, §4.5).
func (c *Cache) Evict(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// Len reports the number of cached providers, for diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
