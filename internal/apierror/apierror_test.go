package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRespondKnownKind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Respond(c, New(KindUnauthorized, "missing credential"))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Message != "missing credential" || body.Error.Type != "invalid_request_error" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}

func TestRespondUnknownErrorDefaultsToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Respond(c, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unwrapped error, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"type":"server_error"`) {
		t.Fatalf("expected server_error type in body, got %s", w.Body.String())
	}
}

func TestUpstreamUnavailableIs502(t *testing.T) {
	err := New(KindUpstreamUnavailable, "provider unreachable")
	if err.Status() != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", err.Status())
	}
	if err.Type() != "upstream_error" {
		t.Fatalf("expected upstream_error type, got %q", err.Type())
	}
}
