// Package trace implements the process-wide trace sink of spec §4.9: a
// bounded, best-effort queue that encrypts request/response bodies and
// flushes them to the trace store on a background timer, degrading to a
// no-op sink when the encryption master key is absent.
//
// Grounded on the teacher's internal/registry/handler/ratelimit.go
// shape (background goroutine plus mutex-guarded bounded state) for the
// queue, and internal/email/noop.go's "missing optional dependency ->
// no-op implementation of the same interface" posture for the degrade
// path.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/metrics"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

// Event is what a request handler hands the recorder; plaintext bodies are
// encrypted inside Record, never by the caller.
type Event struct {
	TenantID          uuid.UUID
	AgentID           *uuid.UUID
	Model             string
	Provider          string
	RequestPlaintext  []byte
	ResponsePlaintext []byte
	StatusCode        int
	LatencyMs         int
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	TTFBMs            int
	GatewayOverheadMs int
}

// Store is the narrow write surface Recorder needs, satisfied by
// *store.TraceRepository.
type Store interface {
	InsertBatch(ctx context.Context, traces []*store.Trace) error
}

// Sink is the interface request handlers depend on, so the no-op degrade
// path (spec §4.9's "absent master key") is a different implementation of
// the same contract rather than a runtime branch sprinkled through caller
// code.
type Sink interface {
	Record(ev Event)
	// Close flushes any buffered events and stops the background drainer.
	// Callers invoke this once, from graceful shutdown.
	Close(ctx context.Context)
}

const (
	defaultMaxQueue      = 1000
	defaultFlushInterval = time.Second
	defaultMaxBatch      = 100
)

// Recorder is the real, encrypting sink. Construct via New; construct
// NoopSink directly when ENCRYPTION_MASTER_KEY is absent.
type Recorder struct {
	store  Store
	cipher *cryptoutil.Cipher
	logger *zap.Logger

	maxQueue      int
	flushInterval time.Duration
	maxBatch      int

	mu      sync.Mutex
	queue   []Event
	closeCh chan struct{}
	doneCh  chan struct{}
}

// New builds a Recorder and starts its background drainer. cipher must be
// non-nil; callers without a master key should use NoopSink instead.
func New(store Store, cipher *cryptoutil.Cipher, logger *zap.Logger) *Recorder {
	return newRecorder(store, cipher, logger, defaultMaxQueue, defaultFlushInterval, defaultMaxBatch)
}

func newRecorder(store Store, cipher *cryptoutil.Cipher, logger *zap.Logger, maxQueue int, flushInterval time.Duration, maxBatch int) *Recorder {
	r := &Recorder{
		store:         store,
		cipher:        cipher,
		logger:        logger,
		maxQueue:      maxQueue,
		flushInterval: flushInterval,
		maxBatch:      maxBatch,
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go r.drainLoop()
	return r
}

// Record enqueues ev for eventual encrypted persistence. Never blocks on
// I/O; returns immediately (spec §4.9).
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) >= r.maxQueue {
		// drop-oldest eviction (spec §4.9)
		r.queue = r.queue[1:]
		metrics.RecordTraceDropped()
	}
	r.queue = append(r.queue, ev)
}

func (r *Recorder) drainLoop() {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ticker.C:
			r.flush(context.Background())
		case <-r.closeCh:
			for {
				r.mu.Lock()
				empty := len(r.queue) == 0
				r.mu.Unlock()
				if empty {
					return
				}
				r.flush(context.Background())
			}
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	n := len(r.queue)
	if n > r.maxBatch {
		n = r.maxBatch
	}
	batch := r.queue[:n]
	r.queue = r.queue[n:]
	r.mu.Unlock()

	rows := make([]*store.Trace, 0, len(batch))
	for _, ev := range batch {
		row, err := r.encode(ev)
		if err != nil {
			r.logger.Warn("failed to encrypt trace event, dropping", zap.Error(err))
			metrics.RecordTraceDropped()
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}

	if err := r.store.InsertBatch(ctx, rows); err != nil {
		r.logger.Warn("trace batch flush failed, rows dropped", zap.Error(err), zap.Int("count", len(rows)))
		metrics.RecordTraceFlushed(false, len(rows))
		return
	}
	metrics.RecordTraceFlushed(true, len(rows))
}

func (r *Recorder) encode(ev Event) (*store.Trace, error) {
	reqCipher, reqIV, err := r.cipher.Encrypt(ev.RequestPlaintext, ev.TenantID[:])
	if err != nil {
		return nil, err
	}
	respCipher, respIV, err := r.cipher.Encrypt(ev.ResponsePlaintext, ev.TenantID[:])
	if err != nil {
		return nil, err
	}
	return &store.Trace{
		TenantID:           ev.TenantID,
		AgentID:            ev.AgentID,
		Model:              ev.Model,
		Provider:           ev.Provider,
		RequestCiphertext:  reqCipher,
		RequestIV:          reqIV,
		ResponseCiphertext: respCipher,
		ResponseIV:         respIV,
		StatusCode:         ev.StatusCode,
		LatencyMs:          ev.LatencyMs,
		PromptTokens:       ev.PromptTokens,
		CompletionTokens:   ev.CompletionTokens,
		TotalTokens:        ev.TotalTokens,
		TTFBMs:             ev.TTFBMs,
		GatewayOverheadMs:  ev.GatewayOverheadMs,
	}, nil
}

// Close stops the background drainer after a final flush.
func (r *Recorder) Close(ctx context.Context) {
	close(r.closeCh)
	select {
	case <-r.doneCh:
	case <-ctx.Done():
	}
}

// NoopSink degrades trace recording to nothing, per spec §4.9's startup
// check: "if the master key is missing, the recorder logs a prominent
// warning and degrades to a no-op sink. Requests continue to succeed."
type NoopSink struct {
	logger *zap.Logger
}

// NewNoopSink builds a NoopSink and logs the prominent startup warning.
func NewNoopSink(logger *zap.Logger) *NoopSink {
	logger.Warn("ENCRYPTION_MASTER_KEY is not set: trace recording is disabled")
	return &NoopSink{logger: logger}
}

// Record discards ev.
func (n *NoopSink) Record(ev Event) {}

// Close is a no-op.
func (n *NoopSink) Close(ctx context.Context) {}
