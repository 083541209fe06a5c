package source

import (
	"math"
	"testing"
	"time"
)

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "  u1 ", want: "u1"},
		{input: `="00123"`, want: "00123"},
		{input: "=42", want: "=42"},
		{input: `"quoted"`, want: `"quoted"`},
		{input: "D'", want: "D'"},
		{input: "O'Brien ", want: "O'Brien"},
		{input: `="`, want: `="`},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{" ID", "Name", "id", `"Email"`})
	if idx["email"] != 3 {
		t.Errorf("idx[email] = %d, want 3 (quotes stripped from header)", idx["email"])
	}
	if idx["id"] != 0 {
		t.Errorf("idx[id] = %d, want 0 (first occurrence)", idx["id"])
	}
	if idx["name"] != 1 {
		t.Errorf("idx[name] = %d, want 1", idx["name"])
	}
	if got := idx.Cell([]string{"u1"}, "name"); got != "" {
		t.Errorf("Cell on short row = %q, want empty", got)
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantNaN bool
		wantErr bool
	}{
		{input: "50", want: 50},
		{input: "0.85", want: 0.85},
		{input: "-1.5e2", want: -150},
		{input: "", wantNaN: true},
		{input: "fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFloat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFloat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNaN {
				if !math.IsNaN(got) {
					t.Errorf("ParseFloat(%q) = %v, want NaN", tt.input, got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseFloat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantNil bool
		wantErr bool
	}{
		{input: "34", want: 34},
		{input: "34.0", want: 34},
		{input: "-7", want: -7},
		{input: "", wantNil: true},
		{input: "34.5", wantErr: true},
		{input: "old", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInt(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInt(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseInt(%q) = %d, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ParseInt(%q) = %v, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "2025-11-30T10:15:00Z", want: time.Date(2025, 11, 30, 10, 15, 0, 0, time.UTC)},
		{input: "2025-11-30 10:15:00", want: time.Date(2025, 11, 30, 10, 15, 0, 0, time.UTC)},
		{input: "2025-11-30 10:15:00.250", want: time.Date(2025, 11, 30, 10, 15, 0, 250000000, time.UTC)},
		{input: "2025-11-30T13:15:00+03:00", want: time.Date(2025, 11, 30, 10, 15, 0, 0, time.UTC)},
		{input: "2025-11-30", want: time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)},
		{input: "", want: time.Time{}},
		{input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
