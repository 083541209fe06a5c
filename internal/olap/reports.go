package olap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// ErrNoReports is returned by Summary when the user has no mart rows.
var ErrNoReports = errors.New("no reports for user")

// HighActivityThreshold is the signals_count above which a day counts as high activity.
const HighActivityThreshold = 1000

// ReportFilter narrows a user's report rows. Zero fields do not filter.
type ReportFilter struct {
	UserID         string
	StartDate      time.Time
	EndDate        time.Time
	ProsthesisType string
	MuscleGroup    string
}

// Report is one stored mart row.
type Report struct {
	UserID              string    `ch:"user_id"`
	Date                time.Time `ch:"date"`
	CrmName             string    `ch:"crm_name"`
	CrmAge              int32     `ch:"crm_age"`
	CrmGender           string    `ch:"crm_gender"`
	ProsthesisType      string    `ch:"prosthesis_type"`
	MuscleGroup         string    `ch:"muscle_group"`
	SignalsCount        int32     `ch:"signals_count"`
	SignalFrequencyAvg  float64   `ch:"signal_frequency_avg"`
	SignalDurationAvg   float64   `ch:"signal_duration_avg"`
	SignalAmplitudeAvg  float64   `ch:"signal_amplitude_avg"`
	SignalDurationTotal int32     `ch:"signal_duration_total"`
}

// ActivityLevel buckets the day by signal count.
func (r Report) ActivityLevel() string {
	switch {
	case r.SignalsCount > HighActivityThreshold:
		return "high"
	case r.SignalsCount > 500:
		return "medium"
	case r.SignalsCount > 100:
		return "low"
	default:
		return "minimal"
	}
}

// MarshalJSON writes the date as YYYY-MM-DD and non-finite floats as null.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID              string   `json:"user_id"`
		Date                string   `json:"date"`
		CrmName             string   `json:"crm_name"`
		CrmAge              int32    `json:"crm_age"`
		CrmGender           string   `json:"crm_gender"`
		ProsthesisType      string   `json:"prosthesis_type"`
		MuscleGroup         string   `json:"muscle_group"`
		SignalsCount        int32    `json:"signals_count"`
		SignalFrequencyAvg  *float64 `json:"signal_frequency_avg"`
		SignalDurationAvg   *float64 `json:"signal_duration_avg"`
		SignalAmplitudeAvg  *float64 `json:"signal_amplitude_avg"`
		SignalDurationTotal int32    `json:"signal_duration_total"`
		ActivityLevel       string   `json:"activity_level"`
	}{
		UserID:              r.UserID,
		Date:                mart.FormatDate(r.Date),
		CrmName:             r.CrmName,
		CrmAge:              r.CrmAge,
		CrmGender:           r.CrmGender,
		ProsthesisType:      r.ProsthesisType,
		MuscleGroup:         r.MuscleGroup,
		SignalsCount:        r.SignalsCount,
		SignalFrequencyAvg:  finite(r.SignalFrequencyAvg),
		SignalDurationAvg:   finite(r.SignalDurationAvg),
		SignalAmplitudeAvg:  finite(r.SignalAmplitudeAvg),
		SignalDurationTotal: r.SignalDurationTotal,
		ActivityLevel:       r.ActivityLevel(),
	})
}

// Summary aggregates every stored row of one user.
type Summary struct {
	UserID              string
	TotalSessions       uint64    `ch:"total_sessions"`
	TotalSignals        int64     `ch:"total_signals"`
	AvgFrequency        float64   `ch:"avg_frequency"`
	AvgAmplitude        float64   `ch:"avg_amplitude"`
	LifetimeDuration    int64     `ch:"lifetime_duration"`
	ProsthesisTypesUsed uint64    `ch:"prosthesis_types_used"`
	FirstReportDate     time.Time `ch:"first_report_date"`
	LastReportDate      time.Time `ch:"last_report_date"`
	ActiveMonths        uint64    `ch:"active_months"`
	AvgSessionDuration  float64   `ch:"avg_session_duration"`
	MinFrequency        float64   `ch:"min_frequency"`
	MaxFrequency        float64   `ch:"max_frequency"`
	HighActivityDays    uint64    `ch:"high_activity_days"`
}

// MarshalJSON adds the per-session and per-month ratios. Averages are
// rounded to two decimals.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"user_id":                   s.UserID,
		"total_sessions":            s.TotalSessions,
		"total_signals":             s.TotalSignals,
		"overall_avg_frequency":     round2(s.AvgFrequency),
		"overall_avg_amplitude":     round2(s.AvgAmplitude),
		"lifetime_duration_seconds": s.LifetimeDuration,
		"prosthesis_types_used":     s.ProsthesisTypesUsed,
		"first_report_date":         mart.FormatDate(s.FirstReportDate),
		"last_report_date":          mart.FormatDate(s.LastReportDate),
		"active_months":             s.ActiveMonths,
		"avg_session_duration":      round2(s.AvgSessionDuration),
		"min_frequency":             round2(s.MinFrequency),
		"max_frequency":             round2(s.MaxFrequency),
		"high_activity_days":        s.HighActivityDays,
	}
	if s.TotalSessions > 0 {
		n := float64(s.TotalSessions)
		out["avg_signals_per_session"] = round2(float64(s.TotalSignals) / n)
		out["avg_duration_per_session"] = round2(float64(s.LifetimeDuration) / n)
		out["high_activity_percentage"] = round2(float64(s.HighActivityDays) * 100 / n)
	}
	if s.ActiveMonths > 0 {
		m := float64(s.ActiveMonths)
		out["avg_signals_per_month"] = round2(float64(s.TotalSignals) / m)
		out["avg_sessions_per_month"] = round2(float64(s.TotalSessions) / m)
	}
	return json.Marshal(out)
}

// round2 rounds to two decimals; non-finite values become nil.
func round2(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	r := math.Round(f*100) / 100
	return &r
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

const reportColumns = `user_id, date, crm_name, crm_age, crm_gender, prosthesis_type, muscle_group,
	signals_count, signal_frequency_avg, signal_duration_avg, signal_amplitude_avg, signal_duration_total`

// ReportsQuery builds the filtered report query for table, newest first.
func ReportsQuery(table string, f ReportFilter) (string, []any, error) {
	if err := ValidateTableName(table); err != nil {
		return "", nil, err
	}
	if f.UserID == "" {
		return "", nil, errors.New("user id is required")
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return "", nil, fmt.Errorf("end date %s is before start date %s",
			mart.FormatDate(f.EndDate), mart.FormatDate(f.StartDate))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE user_id = ?", reportColumns, table)
	args := []any{f.UserID}

	if !f.StartDate.IsZero() {
		b.WriteString(" AND date >= toDate(?)")
		args = append(args, mart.FormatDate(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		b.WriteString(" AND date <= toDate(?)")
		args = append(args, mart.FormatDate(f.EndDate))
	}
	if f.ProsthesisType != "" {
		b.WriteString(" AND prosthesis_type = ?")
		args = append(args, f.ProsthesisType)
	}
	if f.MuscleGroup != "" {
		b.WriteString(" AND muscle_group = ?")
		args = append(args, f.MuscleGroup)
	}
	b.WriteString(" ORDER BY date DESC, prosthesis_type, muscle_group")
	return b.String(), args, nil
}

// SummaryQuery builds the per-user summary query for table.
func SummaryQuery(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		SELECT
			count() AS total_sessions,
			sum(signals_count) AS total_signals,
			avg(signal_frequency_avg) AS avg_frequency,
			avg(signal_amplitude_avg) AS avg_amplitude,
			sum(signal_duration_total) AS lifetime_duration,
			uniqExact(prosthesis_type) AS prosthesis_types_used,
			min(date) AS first_report_date,
			max(date) AS last_report_date,
			uniqExact(toYYYYMM(date)) AS active_months,
			avg(signal_duration_avg) AS avg_session_duration,
			min(signal_frequency_avg) AS min_frequency,
			max(signal_frequency_avg) AS max_frequency,
			countIf(signals_count > %d) AS high_activity_days
		FROM %s
		WHERE user_id = ?
	`, HighActivityThreshold, table), nil
}

// Reader runs report queries against the mart table.
type Reader struct {
	DB    driver.Conn
	Table string
}

// Reports returns the user's rows matching f.
func (r *Reader) Reports(ctx context.Context, f ReportFilter) ([]Report, error) {
	query, args, err := ReportsQuery(r.Table, f)
	if err != nil {
		return nil, err
	}
	var rows []Report
	if err := r.DB.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select reports for %s: %w", f.UserID, err)
	}
	if rows == nil {
		rows = []Report{}
	}
	return rows, nil
}

// Summary returns the user's lifetime totals, or ErrNoReports.
func (r *Reader) Summary(ctx context.Context, userID string) (Summary, error) {
	if userID == "" {
		return Summary{}, errors.New("user id is required")
	}
	query, err := SummaryQuery(r.Table)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := r.DB.QueryRow(ctx, query, userID).ScanStruct(&s); err != nil {
		return Summary{}, fmt.Errorf("summary for %s: %w", userID, err)
	}
	if s.TotalSessions == 0 {
		return Summary{}, ErrNoReports
	}
	s.UserID = userID
	return s, nil
}
