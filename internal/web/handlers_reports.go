package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pvmasny/yandex-arch-pro-09/internal/logging"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/reportstore"
)

// reportCSVColumns is the header of CSV report exports.
var reportCSVColumns = append(append([]string(nil), mart.MartColumns...), "activity_level")

// handleReports returns the user's mart rows as JSON or, with format=csv,
// as a CSV download. A user without matching rows gets 404.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	filter, format, ok := parseReportRequest(w, r)
	if !ok {
		return
	}

	reports, err := s.loadReports(r, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if format == "csv" {
		writeReportsCSV(w, filter.UserID, reports)
		return
	}
	writeJSON(w, reportsBody(filter.UserID, reports))
}

// handleReportExport returns a download link to the report export,
// generating and caching it on a miss.
func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	filter, format, ok := parseReportRequest(w, r)
	if !ok {
		return
	}
	if format == "" {
		format = "json"
	}
	key := reportstore.Key(filter, format)
	logger := logging.WithFields(r.Context(), "user_id", filter.UserID, "key", key)

	link, found, err := s.opts.ReportCache.Lookup(r.Context(), key)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if found {
		logger.Info("report served from cache")
		writeJSON(w, exportResponse{
			Cached:    true,
			URL:       link,
			ExpiresIn: int64(s.opts.ReportCache.Expiry().Seconds()),
			Message:   "Report retrieved from cache",
		})
		return
	}

	reports, err := s.loadReports(r, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
		err = encodeReportsCSV(&buf, reports)
	} else {
		err = json.NewEncoder(&buf).Encode(reportsBody(filter.UserID, reports))
	}
	if err != nil {
		respondError(w, r, fmt.Errorf("encode report: %w", err))
		return
	}

	link, err = s.opts.ReportCache.Save(r.Context(), key, buf.Bytes(), contentType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.Info("report generated and cached", "rows", len(reports))
	writeJSON(w, exportResponse{
		Cached:    false,
		URL:       link,
		ExpiresIn: int64(s.opts.ReportCache.Expiry().Seconds()),
		Message:   "Report generated and cached",
	})
}

type exportResponse struct {
	Cached    bool   `json:"cached"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in_seconds"`
	Message   string `json:"message"`
}

// loadReports reads the filtered rows, mapping an empty result to ErrNoReports.
func (s *Server) loadReports(r *http.Request, filter olap.ReportFilter) ([]olap.Report, error) {
	reports, err := s.reports.Reports(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w %s", olap.ErrNoReports, filter.UserID)
	}
	return reports, nil
}

func reportsBody(userID string, reports []olap.Report) map[string]any {
	return map[string]any{
		"user_id": userID,
		"count":   len(reports),
		"reports": reports,
	}
}

// parseReportRequest reads the filter and format. On failure it has already
// written the error response.
func parseReportRequest(w http.ResponseWriter, r *http.Request) (olap.ReportFilter, string, bool) {
	filter, err := parseReportFilter(r)
	if err != nil {
		respondError(w, r, err)
		return filter, "", false
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "csv" {
		respondError(w, r, badRequest("unknown format %q, use json or csv", format))
		return filter, "", false
	}
	return filter, format, true
}

// handleSummary returns the user's lifetime totals.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, r, badRequest("missing user id"))
		return
	}

	summary, err := s.reports.Summary(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func parseReportFilter(r *http.Request) (olap.ReportFilter, error) {
	f := olap.ReportFilter{
		UserID:         strings.TrimSpace(chi.URLParam(r, "userID")),
		ProsthesisType: strings.TrimSpace(r.URL.Query().Get("prosthesis_type")),
		MuscleGroup:    strings.TrimSpace(r.URL.Query().Get("muscle_group")),
	}
	if f.UserID == "" {
		return f, badRequest("missing user id")
	}

	var err error
	if f.StartDate, err = parseDateParam(r, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDateParam(r, "end_date"); err != nil {
		return f, err
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return f, badRequest("end_date %s is before start_date %s",
			mart.FormatDate(f.EndDate), mart.FormatDate(f.StartDate))
	}
	return f, nil
}

func writeReportsCSV(w http.ResponseWriter, userID string, reports []olap.Report) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="reports_%s.csv"`, sanitizeFilename(userID)))

	if err := encodeReportsCSV(w, reports); err != nil {
		slog.Warn("csv export interrupted", "user_id", userID, "error", err)
	}
}

func encodeReportsCSV(w io.Writer, reports []olap.Report) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Write(reportCSVColumns)
	for _, rep := range reports {
		csvWriter.Write([]string{
			rep.UserID,
			mart.FormatDate(rep.Date),
			rep.CrmName,
			strconv.Itoa(int(rep.CrmAge)),
			rep.CrmGender,
			rep.ProsthesisType,
			rep.MuscleGroup,
			strconv.Itoa(int(rep.SignalsCount)),
			formatFloat(rep.SignalFrequencyAvg),
			formatFloat(rep.SignalDurationAvg),
			formatFloat(rep.SignalAmplitudeAvg),
			strconv.Itoa(int(rep.SignalDurationTotal)),
			rep.ActivityLevel(),
		})
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// sanitizeFilename keeps letters, digits, dash and underscore.
func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
