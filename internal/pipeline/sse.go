package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// sseResult summarises what teeSSE observed while forwarding an upstream
// event stream to the client.
type sseResult struct {
	assistantText string
	bytesWritten  int
	ttfbMs        int
	disconnected  bool
}

// teeSSE forwards src to w byte-for-byte as it is read — never re-chunked,
// re-buffered by line, or otherwise normalised — while incrementally
// parsing "data: {...}" lines out of a side buffer to recover the
// assistant's streamed content for trace capture (spec §4.7 step 6's SSE
// branch, grounded on the blackbox-gateway proxy's handleStreamingResponse:
// a 4096-byte read/write loop with an http.Flusher type-assertion after
// every write). Malformed or non-JSON data lines are silently skipped.
func teeSSE(ctx context.Context, w io.Writer, flusher http.Flusher, src io.ReadCloser, start time.Time) *sseResult {
	defer src.Close()

	result := &sseResult{}
	var pending bytes.Buffer
	var content strings.Builder
	first := true
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			result.disconnected = true
			return result
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if first {
				result.ttfbMs = int(time.Since(start).Milliseconds())
				first = false
			}
			if _, err := w.Write(buf[:n]); err != nil {
				result.disconnected = true
				return result
			}
			if flusher != nil {
				flusher.Flush()
			}
			result.bytesWritten += n

			pending.Write(buf[:n])
			content.WriteString(extractSSEDeltas(&pending))
		}
		if readErr != nil {
			break
		}
	}

	result.assistantText = content.String()
	return result
}

// extractSSEDeltas scans buf for complete ("\n"-terminated) lines, parses
// any "data: {...}" payloads for choices[0].delta.content, and leaves the
// trailing incomplete line (if any) in buf for the next call.
func extractSSEDeltas(buf *bytes.Buffer) string {
	data := buf.Bytes()
	lastNL := bytes.LastIndexByte(data, '\n')
	if lastNL < 0 {
		return ""
	}
	complete := make([]byte, lastNL+1)
	copy(complete, data[:lastNL+1])
	rest := make([]byte, len(data)-lastNL-1)
	copy(rest, data[lastNL+1:])
	buf.Reset()
	buf.Write(rest)

	var out strings.Builder
	for _, line := range bytes.Split(complete, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		text := strings.TrimSpace(string(line))
		if !strings.HasPrefix(text, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		choices, _ := chunk["choices"].([]any)
		if len(choices) == 0 {
			continue
		}
		c0, _ := choices[0].(map[string]any)
		delta, _ := c0["delta"].(map[string]any)
		if s, ok := delta["content"].(string); ok {
			out.WriteString(s)
		}
	}
	return out.String()
}
