package journal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type execCall struct {
	sql  string
	args []interface{}
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	execs    []execCall
	affected string
	execErr  error
	row      fakeRow
	lastSQL  string
	lastArgs []interface{}
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	tag := d.affected
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (d *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	d.lastSQL = sql
	d.lastArgs = args
	return d.row
}

var fixedNow = time.Date(2025, 12, 2, 2, 0, 5, 0, time.UTC)

func newTestJournal(db *fakeDB) *Journal {
	j := New(db)
	j.now = func() time.Time { return fixedNow }
	return j
}

func TestJournal_Start(t *testing.T) {
	db := &fakeDB{}
	id := uuid.New()
	runDate := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	if err := newTestJournal(db).Start(context.Background(), id, runDate); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO mart_runs") {
		t.Errorf("sql = %q", call.sql)
	}
	if got := call.args[0].(pgtype.UUID); uuid.UUID(got.Bytes) != id {
		t.Errorf("id arg = %v, want %v", got, id)
	}
	if call.args[2] != "running" {
		t.Errorf("status arg = %v, want running", call.args[2])
	}
}

func TestJournal_Finish(t *testing.T) {
	counts := Counts{Crm: 10, Telemetry: 200, Aggregated: 12, Loaded: 12}

	tests := []struct {
		name       string
		affected   string
		call       func(j *Journal, id uuid.UUID) error
		wantStatus string
		wantMsg    pgtype.Text
		wantErr    error
	}{
		{
			name:       "succeed",
			call:       func(j *Journal, id uuid.UUID) error { return j.Succeed(context.Background(), id, counts) },
			wantStatus: "succeeded",
		},
		{
			name: "fail",
			call: func(j *Journal, id uuid.UUID) error {
				return j.Fail(context.Background(), id, counts, errors.New("coerce row 0"))
			},
			wantStatus: "failed",
			wantMsg:    pgtype.Text{String: "coerce row 0", Valid: true},
		},
		{
			name:     "unknown run",
			affected: "UPDATE 0",
			call:     func(j *Journal, id uuid.UUID) error { return j.Succeed(context.Background(), id, counts) },
			wantErr:  ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{affected: tt.affected}
			err := tt.call(newTestJournal(db), uuid.New())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			args := db.execs[0].args
			if args[1] != tt.wantStatus {
				t.Errorf("status = %v, want %s", args[1], tt.wantStatus)
			}
			if args[3] != 10 || args[6] != 12 {
				t.Errorf("counts args = %v", args[3:7])
			}
			if args[7] != tt.wantMsg {
				t.Errorf("error arg = %v, want %v", args[7], tt.wantMsg)
			}
		})
	}
}

func TestJournal_Last(t *testing.T) {
	id := uuid.New()
	started := time.Date(2025, 12, 2, 2, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*pgtype.UUID) = pgtype.UUID{Bytes: id, Valid: true}
		*dest[1].(*pgtype.Date) = pgtype.Date{Time: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), Valid: true}
		*dest[2].(*string) = "failed"
		*dest[3].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: started, Valid: true}
		*dest[4].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
		*dest[5].(*int) = 3
		*dest[9].(*pgtype.Text) = pgtype.Text{String: "boom", Valid: true}
		return nil
	}}}

	run, err := newTestJournal(db).Last(context.Background(), time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if run.ID != id || run.RunDate != "2025-12-01" || run.Status != StatusFailed {
		t.Errorf("run = %+v", run)
	}
	if run.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", run.FinishedAt)
	}
	if run.Crm != 3 || run.Error != "boom" {
		t.Errorf("Crm/Error = %d/%q, want 3/boom", run.Crm, run.Error)
	}
	if !strings.Contains(db.lastSQL, "WHERE run_date = $1") || len(db.lastArgs) != 1 {
		t.Errorf("query not filtered by date: %q %v", db.lastSQL, db.lastArgs)
	}
}

func TestJournal_LastNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}

	_, err := newTestJournal(db).Last(context.Background(), time.Time{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if strings.Contains(db.lastSQL, "WHERE") {
		t.Errorf("zero date should not filter: %q", db.lastSQL)
	}
}

func TestJournal_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := newTestJournal(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS mart_runs") {
		t.Errorf("sql = %q", db.execs[0].sql)
	}
}
