package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCrmExtractor_Extract(t *testing.T) {
	path := writeCSV(t, "crm.csv", "\xEF\xBB\xBFid,name,email,age,gender,country\n"+
		"u1,A. Ivanov,a@example.com,34,M,RU\n"+
		"u2,B. Petrova,b@example.com,,F,KZ\n"+
		"u1,Duplicate,dup@example.com,99,M,RU\n")

	e := &CrmExtractor{Path: path, Logger: quietLogger()}
	set, err := e.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(set.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(set.Records))
	}
	u1 := set.Records[0]
	if u1.UserID != "u1" || u1.Name != "A. Ivanov" || u1.Gender != "M" || u1.Country != "RU" {
		t.Errorf("u1 = %+v", u1)
	}
	if u1.Age == nil || *u1.Age != 34 {
		t.Errorf("u1.Age = %v, want 34", u1.Age)
	}
	if set.Records[1].Age != nil {
		t.Errorf("u2.Age = %d, want nil", *set.Records[1].Age)
	}
	if len(set.Columns) != len(mart.CrmColumns) {
		t.Errorf("Columns = %v, want %v", set.Columns, mart.CrmColumns)
	}
}

func TestCrmExtractor_HeaderOnly(t *testing.T) {
	path := writeCSV(t, "crm.csv", "id,name,email,age,gender,country\n")

	set, err := (&CrmExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(set.Records) != 0 || len(set.Columns) != 0 {
		t.Errorf("set = %+v, want empty records and no columns", set)
	}
}

func TestCrmExtractor_KeepsValueQuotes(t *testing.T) {
	path := writeCSV(t, "crm.csv", "id,name,email,age,gender,country\n"+
		"u1,D',a@example.com,34,M,RU\n"+
		"u2,=Ivanov,b@example.com,\"=\"\"41\"\"\",F,RU\n")

	set, err := (&CrmExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := set.Records[0].Name; got != "D'" {
		t.Errorf("Name = %q, want %q", got, "D'")
	}
	if got := set.Records[1].Name; got != "=Ivanov" {
		t.Errorf("Name = %q, want %q", got, "=Ivanov")
	}
	if age := set.Records[1].Age; age == nil || *age != 41 {
		t.Errorf("Age = %v, want 41 from a text formula", age)
	}
}

func TestCrmExtractor_LongCyrillicField(t *testing.T) {
	for pad := 4060; pad < 4100; pad++ {
		name := strings.Repeat("a", pad) + strings.Repeat("Иванов", 4)
		path := writeCSV(t, "crm.csv", "id,name,email,age,gender,country\n"+
			"u1,"+name+",a@example.com,34,M,RU\n")

		set, err := (&CrmExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background())
		if err != nil {
			t.Fatalf("pad %d: Extract() error = %v", pad, err)
		}
		if len(set.Records) != 1 || set.Records[0].Name != name {
			t.Fatalf("pad %d: name not preserved", pad)
		}
	}
}

func TestCrmExtractor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
		wantSub string
	}{
		{name: "missing file", missing: true},
		{
			name:    "missing columns",
			content: "id,name,age\nu1,A,3\n",
			wantSub: "missing required columns: email, gender, country",
		},
		{
			name:    "bad age",
			content: "id,name,email,age,gender,country\nu1,A,a@x,old,M,RU\n",
			wantSub: "crm.csv:2: age",
		},
		{name: "empty file", content: "", wantSub: "no header row"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "crm.csv")
			if !tt.missing {
				path = writeCSV(t, "crm.csv", tt.content)
			}

			_, err := (&CrmExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background())
			if err == nil {
				t.Fatal("Extract() expected error")
			}
			if tt.missing {
				if !errors.Is(err, mart.ErrSourceMissing) {
					t.Errorf("error = %v, want ErrSourceMissing", err)
				}
				return
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestTelemetryExtractor_Extract(t *testing.T) {
	path := writeCSV(t, "telemetry.csv",
		"user_id,prosthesis_type,muscle_group,signal_time,signal_frequency,signal_duration,signal_amplitude\n"+
			"u1,hand,forearm,2025-11-30 10:00:00,50,2.0,0.8\n"+
			"\n"+
			"u1,hand,forearm,2025-11-30T10:05:00Z,60,3.0,\n")

	runDate := time.Date(2025, 12, 1, 15, 30, 0, 0, time.UTC)
	signals, err := (&TelemetryExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("len(signals) = %d, want 2", len(signals))
	}
	for i, s := range signals {
		if mart.FormatDate(s.Date) != "2025-12-01" {
			t.Errorf("signals[%d].Date = %s, want 2025-12-01", i, mart.FormatDate(s.Date))
		}
		if s.Date.Hour() != 0 {
			t.Errorf("signals[%d].Date keeps time of day: %v", i, s.Date)
		}
	}
	if signals[0].SignalFrequency != 50 || signals[0].SignalDuration != 2.0 {
		t.Errorf("signals[0] = %+v", signals[0])
	}
	if !math.IsNaN(signals[1].SignalAmplitude) {
		t.Errorf("signals[1].SignalAmplitude = %v, want NaN for empty cell", signals[1].SignalAmplitude)
	}
}

func TestTelemetryExtractor_BadNumber(t *testing.T) {
	path := writeCSV(t, "telemetry.csv",
		"user_id,prosthesis_type,muscle_group,signal_time,signal_frequency,signal_duration,signal_amplitude\n"+
			"u1,hand,forearm,2025-11-30 10:00:00,fast,2.0,0.8\n")

	_, err := (&TelemetryExtractor{Path: path, Logger: quietLogger()}).Extract(context.Background(), time.Now())

	var rowErr *RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("error = %v, want *RowError", err)
	}
	if rowErr.Line != 2 || rowErr.Column != "signal_frequency" {
		t.Errorf("RowError = %+v, want line 2 signal_frequency", rowErr)
	}
}

func TestTelemetryExtractor_CanceledContext(t *testing.T) {
	path := writeCSV(t, "telemetry.csv",
		"user_id,prosthesis_type,muscle_group,signal_time,signal_frequency,signal_duration,signal_amplitude\n"+
			"u1,hand,forearm,,1,1,1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&TelemetryExtractor{Path: path, Logger: quietLogger()}).Extract(ctx, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
