package trace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu      sync.Mutex
	inserts [][]*store.Trace
	fail    bool
}

func (f *fakeStore) InsertBatch(ctx context.Context, traces []*store.Trace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	cp := make([]*store.Trace, len(traces))
	copy(cp, traces)
	f.inserts = append(f.inserts, cp)
	return nil
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.inserts {
		n += len(batch)
	}
	return n
}

func testCipher(t *testing.T) *cryptoutil.Cipher {
	t.Helper()
	c, err := cryptoutil.NewCipher("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestRecorderFlushesOnTicker(t *testing.T) {
	fs := &fakeStore{}
	r := newRecorder(fs, testCipher(t), zap.NewNop(), defaultMaxQueue, 20*time.Millisecond, defaultMaxBatch)
	defer r.Close(context.Background())

	r.Record(Event{TenantID: uuid.New(), RequestPlaintext: []byte("req"), ResponsePlaintext: []byte("resp")})

	deadline := time.Now().Add(2 * time.Second)
	for fs.total() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fs.total() != 1 {
		t.Fatalf("expected 1 flushed trace, got %d", fs.total())
	}
}

func TestRecorderDropOldestWhenQueueFull(t *testing.T) {
	fs := &fakeStore{}
	r := newRecorder(fs, testCipher(t), zap.NewNop(), 2, time.Hour, defaultMaxBatch)
	defer r.Close(context.Background())

	r.Record(Event{TenantID: uuid.New()})
	r.Record(Event{TenantID: uuid.New()})
	r.Record(Event{TenantID: uuid.New()}) // should evict the first

	r.mu.Lock()
	n := len(r.queue)
	r.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected queue bounded at 2 after drop-oldest eviction, got %d", n)
	}
}

func TestNoopSinkDiscardsEvents(t *testing.T) {
	n := NewNoopSink(zap.NewNop())
	n.Record(Event{TenantID: uuid.New()})
	n.Close(context.Background())
}
