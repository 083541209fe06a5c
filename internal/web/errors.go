package web

// errors.go maps pipeline and read-path errors to coded user messages.
//
// Codes:
//
//	SRC001  - Source missing: an input CSV export does not exist (422)
//	SRC002  - Source malformed: a CSV export has bad headers or rows (422)
//	COER001 - Coercion: a mart value does not fit its column type (422)
//	JOIN001 - Join gap: a telemetry user has no CRM row (422)
//	SINK001 - Sink write: the OLAP store rejected the batch (500)
//	RUN001  - Run in progress: another run holds the run guard (409)
//	REQ001  - Bad request: a parameter or body is invalid (400)
//	NF001   - Not found: no journal entry or no report rows (404)
//	DB001   - Connection refused: a database is unreachable (503)
//	TMO001  - Timeout: the operation ran out of time (504)
//	ERR000  - Unknown: anything else (500)
//
// Typed errors are checked first with errors.Is and errors.As. Anything left
// is matched case-insensitively against known message fragments, first match
// wins.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pvmasny/yandex-arch-pro-09/internal/journal"
	"github.com/pvmasny/yandex-arch-pro-09/internal/logging"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/pipeline"
	"github.com/pvmasny/yandex-arch-pro-09/internal/source"
)

// UserMessage is the client-facing form of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
	Status  int    // HTTP status
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// requestError marks a client mistake in parameters or body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

var (
	msgSourceMissing = UserMessage{
		Message: "An input export is missing",
		Action:  "Check that the CRM and telemetry exports were delivered",
		Code:    "SRC001",
		Status:  http.StatusUnprocessableEntity,
	}
	msgSourceMalformed = UserMessage{
		Message: "An input export is malformed",
		Action:  "Check the export headers and the row named in the logs",
		Code:    "SRC002",
		Status:  http.StatusUnprocessableEntity,
	}
	msgJoinGap = UserMessage{
		Message: "Telemetry references users missing from the CRM export",
		Action:  "Re-export the CRM table or set MART_JOIN_GAP_POLICY=default",
		Code:    "JOIN001",
		Status:  http.StatusUnprocessableEntity,
	}
	msgCoercion = UserMessage{
		Message: "A mart value does not fit its column type",
		Action:  "Check the source values of the row named in the logs",
		Code:    "COER001",
		Status:  http.StatusUnprocessableEntity,
	}
	msgSinkWrite = UserMessage{
		Message: "The report store rejected the write",
		Action:  "Check that the report table exists and the store is healthy",
		Code:    "SINK001",
		Status:  http.StatusInternalServerError,
	}
	msgRunInProgress = UserMessage{
		Message: "A mart run is already in progress",
		Action:  "Wait for the current run to finish",
		Code:    "RUN001",
		Status:  http.StatusConflict,
	}
	msgNotFound = UserMessage{
		Message: "Nothing found",
		Action:  "Check the user ID or date",
		Code:    "NF001",
		Status:  http.StatusNotFound,
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a narrower date range or try again later",
			Code:    "TMO001",
			Status:  http.StatusGatewayTimeout,
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a narrower date range or try again later",
			Code:    "TMO001",
			Status:  http.StatusGatewayTimeout,
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

// MapError converts err to a user message. A nil error maps to the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		reqErr  *requestError
		rowErr  *source.RowError
		coerce  *mart.CoercionError
		sinkErr *mart.SinkWriteError
	)
	switch {
	case errors.As(err, &reqErr):
		return UserMessage{
			Message: reqErr.msg,
			Action:  "Fix the request and retry",
			Code:    "REQ001",
			Status:  http.StatusBadRequest,
		}
	case errors.Is(err, pipeline.ErrRunInProgress):
		return msgRunInProgress
	case errors.Is(err, mart.ErrSourceMissing):
		return msgSourceMissing
	case errors.As(err, &rowErr):
		return msgSourceMalformed
	case errors.Is(err, mart.ErrJoinGap):
		return msgJoinGap
	case errors.As(err, &coerce):
		return msgCoercion
	case errors.As(err, &sinkErr):
		return msgSinkWrite
	case errors.Is(err, journal.ErrNotFound), errors.Is(err, olap.ErrNoReports):
		return msgNotFound
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "missing required columns") {
		return msgSourceMalformed
	}
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// respondError logs err with request context and writes its coded JSON form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	logger := logging.FromContext(r.Context())
	level := logger.Warn
	if msg.Status >= http.StatusInternalServerError {
		level = logger.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"code", msg.Code,
		"error", err.Error(),
	)

	writeJSONStatus(w, msg.Status, errorResponse(msg))
}

func errorResponse(msg UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to tell the client.
		slog.Warn("json encode error", "error", err)
	}
}
