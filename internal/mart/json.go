package mart

// json.go gives the records a flat key/value JSON form for stage hand-off.
//
// Dates travel as YYYY-MM-DD, timestamps as RFC3339Nano. Float fields are
// plain JSON numbers except NaN and the infinities, which encoding/json
// rejects; those are written as the strings "NaN", "+Inf" and "-Inf".

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// jsonFloat is a float64 that survives a JSON round trip when non-finite.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "+Inf", "Inf":
			*f = jsonFloat(math.Inf(1))
		case "-Inf":
			*f = jsonFloat(math.Inf(-1))
		default:
			return fmt.Errorf("invalid float %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

func parseJSONDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return ParseRunDate(s)
}

type signalJSON struct {
	UserID          string    `json:"user_id"`
	Date            string    `json:"date"`
	ProsthesisType  string    `json:"prosthesis_type"`
	MuscleGroup     string    `json:"muscle_group"`
	SignalTime      string    `json:"signal_time,omitempty"`
	SignalFrequency jsonFloat `json:"signal_frequency"`
	SignalDuration  jsonFloat `json:"signal_duration"`
	SignalAmplitude jsonFloat `json:"signal_amplitude"`
}

// MarshalJSON implements json.Marshaler.
func (s TelemetrySignal) MarshalJSON() ([]byte, error) {
	out := signalJSON{
		UserID:          s.UserID,
		Date:            FormatDate(s.Date),
		ProsthesisType:  s.ProsthesisType,
		MuscleGroup:     s.MuscleGroup,
		SignalFrequency: jsonFloat(s.SignalFrequency),
		SignalDuration:  jsonFloat(s.SignalDuration),
		SignalAmplitude: jsonFloat(s.SignalAmplitude),
	}
	if !s.SignalTime.IsZero() {
		out.SignalTime = s.SignalTime.Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TelemetrySignal) UnmarshalJSON(b []byte) error {
	var in signalJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	date, err := parseJSONDate(in.Date)
	if err != nil {
		return err
	}
	var ts time.Time
	if in.SignalTime != "" {
		if ts, err = time.Parse(time.RFC3339Nano, in.SignalTime); err != nil {
			return fmt.Errorf("signal_time: %w", err)
		}
	}
	*s = TelemetrySignal{
		UserID:          in.UserID,
		Date:            date,
		ProsthesisType:  in.ProsthesisType,
		MuscleGroup:     in.MuscleGroup,
		SignalTime:      ts,
		SignalFrequency: float64(in.SignalFrequency),
		SignalDuration:  float64(in.SignalDuration),
		SignalAmplitude: float64(in.SignalAmplitude),
	}
	return nil
}

type aggregateJSON struct {
	UserID              string    `json:"user_id"`
	Date                string    `json:"date"`
	ProsthesisType      string    `json:"prosthesis_type"`
	MuscleGroup         string    `json:"muscle_group"`
	SignalsCount        int64     `json:"signals_count"`
	SignalFrequencyAvg  jsonFloat `json:"signal_frequency_avg"`
	SignalDurationAvg   jsonFloat `json:"signal_duration_avg"`
	SignalAmplitudeAvg  jsonFloat `json:"signal_amplitude_avg"`
	SignalDurationTotal jsonFloat `json:"signal_duration_total"`
}

func toAggregateJSON(r AggregatedTelemetryRecord) aggregateJSON {
	return aggregateJSON{
		UserID:              r.UserID,
		Date:                FormatDate(r.Date),
		ProsthesisType:      r.ProsthesisType,
		MuscleGroup:         r.MuscleGroup,
		SignalsCount:        r.SignalsCount,
		SignalFrequencyAvg:  jsonFloat(r.SignalFrequencyAvg),
		SignalDurationAvg:   jsonFloat(r.SignalDurationAvg),
		SignalAmplitudeAvg:  jsonFloat(r.SignalAmplitudeAvg),
		SignalDurationTotal: jsonFloat(r.SignalDurationTotal),
	}
}

func (a aggregateJSON) record() (AggregatedTelemetryRecord, error) {
	date, err := parseJSONDate(a.Date)
	if err != nil {
		return AggregatedTelemetryRecord{}, err
	}
	return AggregatedTelemetryRecord{
		UserID:              a.UserID,
		Date:                date,
		ProsthesisType:      a.ProsthesisType,
		MuscleGroup:         a.MuscleGroup,
		SignalsCount:        a.SignalsCount,
		SignalFrequencyAvg:  float64(a.SignalFrequencyAvg),
		SignalDurationAvg:   float64(a.SignalDurationAvg),
		SignalAmplitudeAvg:  float64(a.SignalAmplitudeAvg),
		SignalDurationTotal: float64(a.SignalDurationTotal),
	}, nil
}

// MarshalJSON implements json.Marshaler.
func (r AggregatedTelemetryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(toAggregateJSON(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AggregatedTelemetryRecord) UnmarshalJSON(b []byte) error {
	var in aggregateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	rec, err := in.record()
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

type martJSON struct {
	aggregateJSON
	CrmName   *string `json:"crm_name,omitempty"`
	CrmAge    *int64  `json:"crm_age,omitempty"`
	CrmGender *string `json:"crm_gender,omitempty"`
}

// MarshalJSON implements json.Marshaler. Nil CRM fields are omitted.
func (r MartRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(martJSON{
		aggregateJSON: toAggregateJSON(r.AggregatedTelemetryRecord),
		CrmName:       r.CrmName,
		CrmAge:        r.CrmAge,
		CrmGender:     r.CrmGender,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *MartRecord) UnmarshalJSON(b []byte) error {
	var in martJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	agg, err := in.aggregateJSON.record()
	if err != nil {
		return err
	}
	*r = MartRecord{
		AggregatedTelemetryRecord: agg,
		CrmName:                   in.CrmName,
		CrmAge:                    in.CrmAge,
		CrmGender:                 in.CrmGender,
	}
	return nil
}
