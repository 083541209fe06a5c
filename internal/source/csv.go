package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// RowError reports a row that could not be converted.
type RowError struct {
	File   string
	Line   int // 1-based, header is line 1
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s:%d: %s: %v", e.File, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Open opens path for reading. A missing file yields an error wrapping
// mart.ErrSourceMissing.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", mart.ErrSourceMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// ValidateHeaders checks that every required column exists in the header row
// and returns its index. The error lists all missing columns.
func ValidateHeaders(header []string, required []string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(header)
	var missing []string
	for _, name := range required {
		if _, ok := idx[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// table streams the rows of one CSV file.
type table struct {
	name   string
	r      *csv.Reader
	header HeaderIndex
	line   int
	bytes  *countingReader
}

// openTable opens path, checks the header against required and returns a
// table positioned at the first data row.
func openTable(path string, required []string) (*table, io.Closer, error) {
	f, err := Open(path)
	if err != nil {
		return nil, nil, err
	}

	counter := wrapStream(f)
	r := csv.NewReader(counter)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	name := filepath.Base(path)
	header, err := r.Read()
	if err == io.EOF {
		f.Close()
		return nil, nil, fmt.Errorf("%s: empty file, no header row", name)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	idx, err := ValidateHeaders(header, required)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return &table{name: name, r: r, header: idx, line: 1, bytes: counter}, f, nil
}

// next returns the next data row, skipping blank lines. It returns io.EOF at
// the end of the file.
func (t *table) next() ([]string, error) {
	for {
		row, err := t.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &RowError{File: t.name, Line: perr.Line, Err: perr.Err}
			}
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		t.line, _ = t.r.FieldPos(0)
		if isBlank(row) {
			continue
		}
		return row, nil
	}
}

func (t *table) rowError(column string, err error) error {
	return &RowError{File: t.name, Line: t.line, Column: column, Err: err}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
