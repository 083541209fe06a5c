package mart

// coerce.go converts mart records to the destination column types.
//
// Target types per column:
//
//	user_id               string
//	date                  string (YYYY-MM-DD)
//	crm_name              string
//	crm_age               int32
//	crm_gender            string
//	prosthesis_type       string
//	muscle_group          string
//	signals_count         int32
//	signal_frequency_avg  float64
//	signal_duration_avg   float64
//	signal_amplitude_avg  float64
//	signal_duration_total int32
//
// Float-to-integer casts truncate toward zero. NaN, infinities and values
// outside the int32 range fail. Float columns pass NaN through unchanged.

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// GapPolicy decides how coercion treats rows with no CRM match.
type GapPolicy int

const (
	// GapFail rejects the run on the first unmatched row.
	GapFail GapPolicy = iota
	// GapDefault loads unmatched CRM fields as "" and 0.
	GapDefault
)

// String returns the config spelling of the policy.
func (p GapPolicy) String() string {
	switch p {
	case GapDefault:
		return "default"
	default:
		return "fail"
	}
}

// ParseGapPolicy parses "fail" or "default" (case-insensitive).
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return GapFail, nil
	case "default":
		return GapDefault, nil
	default:
		return GapFail, fmt.Errorf("unknown join gap policy %q (use fail or default)", s)
	}
}

var (
	errAbsent     = errors.New("value is absent")
	errNotFinite  = errors.New("not a finite number")
	errOutOfRange = errors.New("out of int32 range")
)

// Coerce converts every record of set to a LoadRow.
//
// The first row that fails aborts the whole set with a *CoercionError naming
// every failing column of that row.
func Coerce(set MartSet, policy GapPolicy) ([]LoadRow, error) {
	has := make(map[string]bool, len(set.Columns))
	for _, c := range set.Columns {
		has[c] = true
	}

	rows := make([]LoadRow, 0, len(set.Records))
	for i, rec := range set.Records {
		row, err := coerceRecord(rec, has, policy)
		if err != nil {
			err.Row = i
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// coerceRecord converts one record, collecting every failing column.
func coerceRecord(rec MartRecord, has map[string]bool, policy GapPolicy) (LoadRow, *CoercionError) {
	var failed []string
	var causes []error
	fail := func(col string, err error) {
		failed = append(failed, col)
		causes = append(causes, fmt.Errorf("%s: %w", col, err))
	}

	gap := !rec.Matched()
	row := LoadRow{
		UserID:             rec.UserID,
		Date:               FormatDate(rec.Date),
		ProsthesisType:     rec.ProsthesisType,
		MuscleGroup:        rec.MuscleGroup,
		SignalFrequencyAvg: rec.SignalFrequencyAvg,
		SignalDurationAvg:  rec.SignalDurationAvg,
		SignalAmplitudeAvg: rec.SignalAmplitudeAvg,
	}

	if name, ok := crmString(rec.CrmName, has[ColCrmName], policy); ok {
		row.CrmName = name
	} else {
		fail(ColCrmName, errAbsent)
	}

	switch {
	case rec.CrmAge != nil && has[ColCrmAge]:
		age, err := toInt32(float64(*rec.CrmAge))
		if err != nil {
			fail(ColCrmAge, err)
		}
		row.CrmAge = age
	case policy == GapDefault:
		row.CrmAge = 0
	default:
		fail(ColCrmAge, errAbsent)
	}

	if gender, ok := crmString(rec.CrmGender, has[ColCrmGender], policy); ok {
		row.CrmGender = gender
	} else {
		fail(ColCrmGender, errAbsent)
	}

	count, err := toInt32(float64(rec.SignalsCount))
	if err != nil {
		fail(ColSignalsCount, err)
	}
	row.SignalsCount = count

	total, err := toInt32(rec.SignalDurationTotal)
	if err != nil {
		fail(ColSignalDurationTotal, err)
	}
	row.SignalDurationTotal = total

	if len(failed) == 0 {
		return row, nil
	}

	cause := errors.Join(causes...)
	if gap {
		cause = errors.Join(ErrJoinGap, cause)
	}
	return LoadRow{}, &CoercionError{
		UserID:  rec.UserID,
		Columns: failed,
		Err:     cause,
	}
}

// crmString resolves a nullable CRM string under policy.
func crmString(v *string, carried bool, policy GapPolicy) (string, bool) {
	if v != nil && carried {
		return *v, true
	}
	if policy == GapDefault {
		return "", true
	}
	return "", false
}

// toInt32 truncates f toward zero.
func toInt32(f float64) (int32, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, errOutOfRange
	}
	return int32(t), nil
}
