package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pvmasny/yandex-arch-pro-09/internal/logging"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/pipeline"
)

// maxRunBodySize bounds the POST /api/runs body.
const maxRunBodySize = 1 << 10

type runRequest struct {
	Date string `json:"date"`
}

// RunFailure is the body of a failed run: the coded error plus the partial
// report of the stages that ran.
type RunFailure struct {
	ErrorResponse
	Run *pipeline.Report `json:"run,omitempty"`
}

// handleTriggerRun runs the pipeline synchronously for the requested date,
// or for yesterday (UTC) when the body is empty or omits it.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runDate, err := s.parseRunRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// Client disconnects do not cancel the run.
	ctx := context.WithoutCancel(r.Context())

	report, err := s.runs.RunExclusive(ctx, runDate)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		respondError(w, r, err)
		return
	}
	if err != nil {
		msg := MapError(err)
		logging.FromContext(r.Context()).Error("run request failed",
			"run_id", report.RunID,
			"run_date", report.RunDate,
			"code", msg.Code,
			"error", err,
		)
		writeJSONStatus(w, msg.Status, RunFailure{
			ErrorResponse: errorResponse(msg),
			Run:           &report,
		})
		return
	}
	writeJSON(w, report)
}

func (s *Server) parseRunRequest(r *http.Request) (time.Time, error) {
	var req runRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRunBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return time.Time{}, badRequest("invalid run request body: %v", err)
	}

	if req.Date == "" {
		return mart.PreviousDay(s.now()), nil
	}
	date, err := mart.ParseRunDate(req.Date)
	if err != nil {
		return time.Time{}, badRequest("invalid date %q, use YYYY-MM-DD", req.Date)
	}
	return date, nil
}

// handleLastRun returns the latest journal entry, optionally for ?date=.
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONStatus(w, http.StatusNotFound, errorResponse(UserMessage{
			Message: "Run journal is not configured",
			Action:  "Set JOURNAL_DATABASE_URL to record runs",
			Code:    "NF001",
		}))
		return
	}

	date, err := parseDateParam(r, "date")
	if err != nil {
		respondError(w, r, err)
		return
	}

	run, err := s.history.Last(r.Context(), date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, run)
}
