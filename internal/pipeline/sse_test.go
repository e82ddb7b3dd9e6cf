package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

func TestTeeSSEForwardsBytesVerbatim(t *testing.T) {
	const stream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var out bytes.Buffer
	src := nopCloser{strings.NewReader(stream)}
	result := teeSSE(context.Background(), &out, nil, src, time.Now())

	if out.String() != stream {
		t.Fatalf("expected byte-identical forwarding, got %q", out.String())
	}
	if result.assistantText != "Hello" {
		t.Fatalf("expected accumulated content Hello, got %q", result.assistantText)
	}
	if result.bytesWritten != len(stream) {
		t.Fatalf("expected bytesWritten %d, got %d", len(stream), result.bytesWritten)
	}
}

func TestTeeSSESkipsMalformedLines(t *testing.T) {
	const stream = "data: not-json\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		": comment line\n\n"

	var out bytes.Buffer
	src := nopCloser{strings.NewReader(stream)}
	result := teeSSE(context.Background(), &out, nil, src, time.Now())

	if out.String() != stream {
		t.Fatalf("expected byte-identical forwarding even with malformed lines, got %q", out.String())
	}
	if result.assistantText != "ok" {
		t.Fatalf("expected malformed/comment lines skipped, got %q", result.assistantText)
	}
}

func TestTeeSSEContextCancelStopsForwarding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := nopCloser{strings.NewReader("data: {}\n\n")}
	var out bytes.Buffer
	result := teeSSE(ctx, &out, nil, src, time.Now())

	if !result.disconnected {
		t.Fatal("expected disconnected to be true when context is already cancelled")
	}
}
