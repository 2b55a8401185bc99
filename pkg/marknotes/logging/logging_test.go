package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
)

func setupTestRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(newLogger(buf, "debug")))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })
	r.GET("/missing", func(c *gin.Context) { errs.Respond(c, errs.NotFound("test", "/x")) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		entry = nil
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("Log line is not JSON: %s", sc.Text())
		}
	}
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	return entry
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := setupTestRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))

	id := w.Header().Get(RequestIDHeader)
	if len(id) != 26 {
		t.Fatalf("Expected a ULID request id, got %q", id)
	}
	if w.Body.String() != id {
		t.Errorf("Expected handler to see request id %s, got %s", id, w.Body.String())
	}
	entry := lastEntry(t, &buf)
	if entry["request_id"] != id || entry["level"] != "info" || entry["status"] != float64(200) {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := setupTestRouter(&buf)

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "abc123" {
		t.Errorf("Expected incoming id to be kept, got %q", got)
	}
}

func TestMiddlewareLevelByStatus(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{"/missing", "warn"},
		{"/boom", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			r := setupTestRouter(&buf)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.path, nil))

			entry := lastEntry(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, entry["level"])
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}

	log = newLogger(&buf, "nonsense")
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("Expected unknown level to fall back to info")
	}
}
