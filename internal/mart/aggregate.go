package mart

import (
	"sort"
	"time"
)

// partition accumulates one group's running sums.
type partition struct {
	key       GroupKey
	date      time.Time
	count     int64
	frequency float64
	duration  float64
	amplitude float64
}

// Aggregate groups signals by (user_id, date, prosthesis_type, muscle_group)
// and emits one record per group, sorted by key.
//
// Averages are arithmetic means and signal_duration_total is a plain sum, all
// in float64. A NaN input value makes its group's mean and sum NaN.
// Nil or empty input yields an empty, non-nil slice.
func Aggregate(signals []TelemetrySignal) []AggregatedTelemetryRecord {
	groups := make(map[GroupKey]*partition)
	for _, s := range signals {
		key := s.Key()
		p, ok := groups[key]
		if !ok {
			p = &partition{key: key, date: TruncateDate(s.Date)}
			groups[key] = p
		}
		p.count++
		p.frequency += s.SignalFrequency
		p.duration += s.SignalDuration
		p.amplitude += s.SignalAmplitude
	}

	parts := make([]*partition, 0, len(groups))
	for _, p := range groups {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].key.Less(parts[j].key)
	})

	out := make([]AggregatedTelemetryRecord, 0, len(parts))
	for _, p := range parts {
		n := float64(p.count)
		out = append(out, AggregatedTelemetryRecord{
			UserID:              p.key.UserID,
			Date:                p.date,
			ProsthesisType:      p.key.ProsthesisType,
			MuscleGroup:         p.key.MuscleGroup,
			SignalsCount:        p.count,
			SignalFrequencyAvg:  p.frequency / n,
			SignalDurationAvg:   p.duration / n,
			SignalAmplitudeAvg:  p.amplitude / n,
			SignalDurationTotal: p.duration,
		})
	}
	return out
}
