package olap

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName accepts plain or database-qualified identifiers.
func ValidateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// CreateTableQuery returns the DDL of the report mart table.
func CreateTableQuery(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id String,
			date Date,
			crm_name String,
			crm_age Int32,
			crm_gender String,
			prosthesis_type String,
			muscle_group String,
			signals_count Int32,
			signal_frequency_avg Float64,
			signal_duration_avg Float64,
			signal_amplitude_avg Float64,
			signal_duration_total Int32
		) ENGINE = MergeTree()
		ORDER BY (date, user_id)
	`, table), nil
}

// EnsureTable creates the report mart table if it does not exist.
func EnsureTable(ctx context.Context, db driver.Conn, table string) error {
	query, err := CreateTableQuery(table)
	if err != nil {
		return err
	}
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}
