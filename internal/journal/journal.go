// Package journal records pipeline runs in PostgreSQL.
//
// Each run is one row of mart_runs, inserted as running when the run starts
// and updated once to succeeded or failed.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Counts holds the row count of each stage.
type Counts struct {
	Crm        int `json:"crm_rows"`
	Telemetry  int `json:"telemetry_rows"`
	Aggregated int `json:"aggregated_rows"`
	Loaded     int `json:"loaded_rows"`
}

// Run is one journal entry.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	RunDate    string     `json:"run_date"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts
	Error string `json:"error,omitempty"`
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mart_runs (
	id              uuid PRIMARY KEY,
	run_date        date NOT NULL,
	status          text NOT NULL,
	started_at      timestamptz NOT NULL,
	finished_at     timestamptz,
	crm_rows        integer NOT NULL DEFAULT 0,
	telemetry_rows  integer NOT NULL DEFAULT 0,
	aggregated_rows integer NOT NULL DEFAULT 0,
	loaded_rows     integer NOT NULL DEFAULT 0,
	error           text
);
CREATE INDEX IF NOT EXISTS mart_runs_run_date_idx ON mart_runs (run_date, started_at DESC);
`

// Journal reads and writes mart_runs.
type Journal struct {
	db  DBTX
	now func() time.Time
}

// New creates a journal on db.
func New(db DBTX) *Journal {
	return &Journal{db: db, now: time.Now}
}

// EnsureSchema creates mart_runs if needed.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create mart_runs: %w", err)
	}
	return nil
}

// Start records a new running entry.
func (j *Journal) Start(ctx context.Context, id uuid.UUID, runDate time.Time) error {
	_, err := j.db.Exec(ctx,
		`INSERT INTO mart_runs (id, run_date, status, started_at) VALUES ($1, $2, $3, $4)`,
		toPgUUID(id),
		pgtype.Date{Time: runDate, Valid: true},
		string(StatusRunning),
		j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// Succeed marks the run succeeded with its stage counts.
func (j *Journal) Succeed(ctx context.Context, id uuid.UUID, counts Counts) error {
	return j.finish(ctx, id, StatusSucceeded, counts, pgtype.Text{})
}

// Fail marks the run failed with the counts reached and the cause.
func (j *Journal) Fail(ctx context.Context, id uuid.UUID, counts Counts, cause error) error {
	msg := pgtype.Text{}
	if cause != nil {
		msg = pgtype.Text{String: cause.Error(), Valid: true}
	}
	return j.finish(ctx, id, StatusFailed, counts, msg)
}

func (j *Journal) finish(ctx context.Context, id uuid.UUID, status Status, c Counts, msg pgtype.Text) error {
	tag, err := j.db.Exec(ctx, `
		UPDATE mart_runs
		SET status = $2,
			finished_at = $3,
			crm_rows = $4,
			telemetry_rows = $5,
			aggregated_rows = $6,
			loaded_rows = $7,
			error = $8
		WHERE id = $1`,
		toPgUUID(id), string(status), j.now().UTC(),
		c.Crm, c.Telemetry, c.Aggregated, c.Loaded, msg,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Last returns the most recently started run for runDate, or the most recent
// run overall when runDate is zero.
func (j *Journal) Last(ctx context.Context, runDate time.Time) (Run, error) {
	query := `
		SELECT id, run_date, status, started_at, finished_at,
			crm_rows, telemetry_rows, aggregated_rows, loaded_rows, error
		FROM mart_runs`
	var args []interface{}
	if !runDate.IsZero() {
		query += ` WHERE run_date = $1`
		args = append(args, pgtype.Date{Time: runDate, Valid: true})
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	var (
		id       pgtype.UUID
		date     pgtype.Date
		status   string
		started  pgtype.Timestamptz
		finished pgtype.Timestamptz
		errText  pgtype.Text
		run      Run
	)
	err := j.db.QueryRow(ctx, query, args...).Scan(
		&id, &date, &status, &started, &finished,
		&run.Crm, &run.Telemetry, &run.Aggregated, &run.Loaded, &errText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("last run: %w", err)
	}

	run.ID = uuid.UUID(id.Bytes)
	run.RunDate = date.Time.Format("2006-01-02")
	run.Status = Status(status)
	run.StartedAt = started.Time
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	run.Error = errText.String
	return run, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
