package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// doProxy performs the common part of spec §4.5 step 2-3 shared by both
// dialects: issue the rewritten request, classify the response by
// Content-Type, and never rewrite a non-2xx upstream status — it is passed
// through verbatim with its body (spec §4.5 step 3, §7 UpstreamError).
func doProxy(ctx context.Context, client *http.Client, method, url string, headers http.Header, body []byte, providerName string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", providerName, err)
	}
	httpReq.Header = headers

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, providerName, err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "text/event-stream" {
		// Caller owns resp.Body from here; do not consume or close it.
		return &Response{Status: resp.StatusCode, Headers: resp.Header, Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", providerName, err)
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}
