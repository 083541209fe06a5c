// This file contains shared request parsing helpers and the health check.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// parseDateParam parses an optional YYYY-MM-DD query parameter.
// An absent parameter yields the zero time.
func parseDateParam(r *http.Request, name string) (time.Time, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return time.Time{}, nil
	}
	t, err := mart.ParseRunDate(val)
	if err != nil {
		return time.Time{}, badRequest("invalid %s %q, use YYYY-MM-DD", name, val)
	}
	return t, nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
