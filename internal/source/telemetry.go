package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// TelemetryRequiredColumns is the minimum header of the telemetry export.
var TelemetryRequiredColumns = []string{
	"user_id", "prosthesis_type", "muscle_group", "signal_time",
	"signal_frequency", "signal_duration", "signal_amplitude",
}

// TelemetryExtractor reads the prosthesis signal export.
type TelemetryExtractor struct {
	Path   string
	Logger *slog.Logger // optional; slog.Default() when nil
}

// Extract reads every signal row and stamps it with runDate. The file is
// taken to hold exactly the signals of that date; signal_time is not used
// for filtering.
func (e *TelemetryExtractor) Extract(ctx context.Context, runDate time.Time) ([]mart.TelemetrySignal, error) {
	start := time.Now()
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	date := mart.TruncateDate(runDate)

	t, closer, err := openTable(e.Path, TelemetryRequiredColumns)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	signals := make([]mart.TelemetrySignal, 0, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		s := mart.TelemetrySignal{
			UserID:         t.header.Cell(row, "user_id"),
			Date:           date,
			ProsthesisType: t.header.Cell(row, "prosthesis_type"),
			MuscleGroup:    t.header.Cell(row, "muscle_group"),
		}
		if s.SignalTime, err = ParseTimestamp(t.header.Cell(row, "signal_time")); err != nil {
			return nil, t.rowError("signal_time", err)
		}
		if s.SignalFrequency, err = ParseFloat(t.header.Cell(row, "signal_frequency")); err != nil {
			return nil, t.rowError("signal_frequency", err)
		}
		if s.SignalDuration, err = ParseFloat(t.header.Cell(row, "signal_duration")); err != nil {
			return nil, t.rowError("signal_duration", err)
		}
		if s.SignalAmplitude, err = ParseFloat(t.header.Cell(row, "signal_amplitude")); err != nil {
			return nil, t.rowError("signal_amplitude", err)
		}
		signals = append(signals, s)
	}

	logger.Info("telemetry extracted",
		"file", t.name,
		"run_date", mart.FormatDate(date),
		"rows", len(signals),
		"bytes", t.bytes.n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return signals, nil
}
