package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, body: "hello", wantLevel: "level=INFO"},
		{name: "client error", status: http.StatusNotFound, body: "nope", wantLevel: "level=WARN"},
		{name: "server error", status: http.StatusInternalServerError, body: "", wantLevel: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)

			handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/reports/u1", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log = %q, want %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, "path=/api/reports/u1") {
				t.Errorf("log = %q, want path", out)
			}
			if want := "status=" + strconv.Itoa(tt.status); !strings.Contains(out, want) {
				t.Errorf("log = %q, want %s", out, want)
			}
		})
	}
}

func TestResponseWriter_CapturesBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	w.Write([]byte("abc"))
	w.Write([]byte("de"))
	w.WriteHeader(http.StatusTeapot)

	if w.bytes != 5 {
		t.Errorf("bytes = %d, want 5", w.bytes)
	}
	if w.status != http.StatusOK {
		t.Errorf("status = %d, want 200 (first write wins)", w.status)
	}
}
