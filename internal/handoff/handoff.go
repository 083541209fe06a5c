// Package handoff persists stage outputs so each pipeline stage can run as
// its own process.
//
// An envelope is one JSON document:
//
//	{"stage": "transform", "run_date": "2025-12-01", "run_id": "...", "records": ...}
//
// Paths ending in ".sz" are snappy-compressed.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// Stage names the producer of an envelope.
type Stage string

const (
	StageCrm       Stage = "extract_crm"
	StageTelemetry Stage = "extract_telemetry"
	StageMart      Stage = "transform"
)

// CompressedExt marks snappy-compressed envelope files.
const CompressedExt = ".sz"

// Envelope wraps one stage's records with the run they belong to.
type Envelope[T any] struct {
	Stage   Stage  `json:"stage"`
	RunDate string `json:"run_date"`
	RunID   string `json:"run_id,omitempty"`
	Records T      `json:"records"`
}

// Typed envelopes of the three stage outputs.
type (
	CrmEnvelope       = Envelope[mart.CrmSet]
	TelemetryEnvelope = Envelope[[]mart.TelemetrySignal]
	MartEnvelope      = Envelope[mart.MartSet]
)

// ErrRunDateMismatch is returned when envelopes joined by one stage come
// from different runs.
var ErrRunDateMismatch = errors.New("hand-off run dates differ")

// SameRunDate checks that the CRM and telemetry envelopes share a run date.
func SameRunDate(crm CrmEnvelope, telemetry TelemetryEnvelope) error {
	if crm.RunDate != telemetry.RunDate {
		return fmt.Errorf("%w: %s has %s, %s has %s", ErrRunDateMismatch,
			crm.Stage, crm.RunDate, telemetry.Stage, telemetry.RunDate)
	}
	return nil
}

// Encode serializes env, compressing it when compress is set.
func Encode[T any](env Envelope[T], compress bool) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Stage, err)
	}
	if compress {
		data = snappy.Encode(nil, data)
	}
	return data, nil
}

// Decode parses data produced by Encode and checks that it came from stage.
func Decode[T any](data []byte, stage Stage, compressed bool) (Envelope[T], error) {
	var env Envelope[T]
	if compressed {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return env, fmt.Errorf("decompress %s envelope: %w", stage, err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode %s envelope: %w", stage, err)
	}
	if env.Stage != stage {
		return env, fmt.Errorf("envelope is from stage %q, want %q", env.Stage, stage)
	}
	if _, err := mart.ParseRunDate(env.RunDate); err != nil {
		return env, fmt.Errorf("%s envelope: %w", stage, err)
	}
	return env, nil
}

// Write stores env at path. The file is written next to path and renamed
// into place, so readers never see a partial envelope.
func Write[T any](path string, env Envelope[T]) error {
	data, err := Encode(env, isCompressed(path))
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read loads the envelope at path written by stage.
func Read[T any](path string, stage Stage) (Envelope[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Envelope[T]{}, fmt.Errorf("%w: %s", mart.ErrSourceMissing, path)
		}
		return Envelope[T]{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode[T](data, stage, isCompressed(path))
}

func isCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}
