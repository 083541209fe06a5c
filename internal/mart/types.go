package mart

import (
	"context"
	"time"
)

// Output column names, in table order.
const (
	ColUserID              = "user_id"
	ColDate                = "date"
	ColCrmName             = "crm_name"
	ColCrmAge              = "crm_age"
	ColCrmGender           = "crm_gender"
	ColProsthesisType      = "prosthesis_type"
	ColMuscleGroup         = "muscle_group"
	ColSignalsCount        = "signals_count"
	ColSignalFrequencyAvg  = "signal_frequency_avg"
	ColSignalDurationAvg   = "signal_duration_avg"
	ColSignalAmplitudeAvg  = "signal_amplitude_avg"
	ColSignalDurationTotal = "signal_duration_total"
)

// MartColumns is the fixed, ordered column list of the destination table.
var MartColumns = []string{
	ColUserID,
	ColDate,
	ColCrmName,
	ColCrmAge,
	ColCrmGender,
	ColProsthesisType,
	ColMuscleGroup,
	ColSignalsCount,
	ColSignalFrequencyAvg,
	ColSignalDurationAvg,
	ColSignalAmplitudeAvg,
	ColSignalDurationTotal,
}

// CrmColumns are the columns contributed by the CRM dimension.
var CrmColumns = []string{ColCrmName, ColCrmAge, ColCrmGender}

// CrmRecord is one user of the CRM dimension.
// Age is nil when the source left it empty.
type CrmRecord struct {
	UserID  string `json:"user_id"`
	Name    string `json:"crm_name"`
	Age     *int64 `json:"crm_age,omitempty"`
	Gender  string `json:"crm_gender"`
	Country string `json:"country"`
}

// CrmSet is the extracted CRM dimension for one run.
type CrmSet struct {
	// Columns lists the CRM-derived mart columns this set can supply.
	// An empty set supplies none.
	Columns []string    `json:"columns"`
	Records []CrmRecord `json:"records"`
}

// NewCrmSet builds a set from records, deriving its column list.
func NewCrmSet(records []CrmRecord) CrmSet {
	set := CrmSet{Records: records}
	if len(records) > 0 {
		set.Columns = append([]string(nil), CrmColumns...)
	}
	return set
}

// Index returns the records keyed by user ID. The first record for an ID wins.
func (s CrmSet) Index() map[string]CrmRecord {
	idx := make(map[string]CrmRecord, len(s.Records))
	for _, r := range s.Records {
		if _, ok := idx[r.UserID]; ok {
			continue
		}
		idx[r.UserID] = r
	}
	return idx
}

// TelemetrySignal is one recorded signal event.
// Date is the run's logical date, not the date of SignalTime.
type TelemetrySignal struct {
	UserID          string
	Date            time.Time
	ProsthesisType  string
	MuscleGroup     string
	SignalTime      time.Time
	SignalFrequency float64
	SignalDuration  float64
	SignalAmplitude float64
}

// Key returns the aggregation key of the signal.
func (s TelemetrySignal) Key() GroupKey {
	return GroupKey{
		UserID:         s.UserID,
		Date:           FormatDate(s.Date),
		ProsthesisType: s.ProsthesisType,
		MuscleGroup:    s.MuscleGroup,
	}
}

// GroupKey identifies one aggregation partition.
// Date is kept in its YYYY-MM-DD form so keys compare by value.
type GroupKey struct {
	UserID         string
	Date           string
	ProsthesisType string
	MuscleGroup    string
}

// Less orders keys by user, date, prosthesis type, then muscle group.
func (k GroupKey) Less(o GroupKey) bool {
	if k.UserID != o.UserID {
		return k.UserID < o.UserID
	}
	if k.Date != o.Date {
		return k.Date < o.Date
	}
	if k.ProsthesisType != o.ProsthesisType {
		return k.ProsthesisType < o.ProsthesisType
	}
	return k.MuscleGroup < o.MuscleGroup
}

// AggregatedTelemetryRecord holds the statistics of one partition.
type AggregatedTelemetryRecord struct {
	UserID              string
	Date                time.Time
	ProsthesisType      string
	MuscleGroup         string
	SignalsCount        int64
	SignalFrequencyAvg  float64
	SignalDurationAvg   float64
	SignalAmplitudeAvg  float64
	SignalDurationTotal float64
}

// Key returns the partition key of the record.
func (r AggregatedTelemetryRecord) Key() GroupKey {
	return GroupKey{
		UserID:         r.UserID,
		Date:           FormatDate(r.Date),
		ProsthesisType: r.ProsthesisType,
		MuscleGroup:    r.MuscleGroup,
	}
}

// MartRecord is an aggregated record enriched with CRM attributes.
// The CRM fields are nil when the user has no CRM row.
type MartRecord struct {
	AggregatedTelemetryRecord
	CrmName   *string
	CrmAge    *int64
	CrmGender *string
}

// Matched reports whether the record found a CRM row.
func (r MartRecord) Matched() bool {
	return r.CrmName != nil || r.CrmAge != nil || r.CrmGender != nil
}

// MartSet is the joined, projected mart for one run.
type MartSet struct {
	// Columns is MartColumns minus any column absent from the joined result.
	Columns []string     `json:"columns"`
	Records []MartRecord `json:"records"`
}

// HasColumn reports whether the set carries the named column.
func (s MartSet) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// LoadRow is a mart record coerced to the destination column types.
type LoadRow struct {
	UserID              string
	Date                string
	CrmName             string
	CrmAge              int32
	CrmGender           string
	ProsthesisType      string
	MuscleGroup         string
	SignalsCount        int32
	SignalFrequencyAvg  float64
	SignalDurationAvg   float64
	SignalAmplitudeAvg  float64
	SignalDurationTotal int32
}

// Values returns the row in MartColumns order.
func (r LoadRow) Values() []any {
	return []any{
		r.UserID,
		r.Date,
		r.CrmName,
		r.CrmAge,
		r.CrmGender,
		r.ProsthesisType,
		r.MuscleGroup,
		r.SignalsCount,
		r.SignalFrequencyAvg,
		r.SignalDurationAvg,
		r.SignalAmplitudeAvg,
		r.SignalDurationTotal,
	}
}

// Conn is a single acquired connection to the destination store.
type Conn interface {
	// Insert appends rows to table. Each row's values follow columns.
	Insert(ctx context.Context, table string, columns []string, rows []LoadRow) error
	Close() error
}

// Connector opens connections to the destination store.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}
