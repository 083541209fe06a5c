package olap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// Options configures the ClickHouse connection.
type Options struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
	Secure      bool
}

func (o Options) clickhouse() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: o.Addr,
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
		DialTimeout: o.DialTimeout,
	}
	if o.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Open opens and pings a ClickHouse connection.
func Open(ctx context.Context, o Options) (driver.Conn, error) {
	db, err := clickhouse.Open(o.clickhouse())
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", strings.Join(o.Addr, ","), err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", strings.Join(o.Addr, ","), err)
	}
	return db, nil
}

// Connector opens one connection per load.
type Connector struct {
	Options Options
}

// Connect implements mart.Connector.
func (c *Connector) Connect(ctx context.Context) (mart.Conn, error) {
	db, err := Open(ctx, c.Options)
	if err != nil {
		return nil, err
	}
	return &Conn{db: db}, nil
}

// Conn is a mart.Conn backed by a ClickHouse connection.
type Conn struct {
	db driver.Conn
}

// NewConn wraps an open connection.
func NewConn(db driver.Conn) *Conn {
	return &Conn{db: db}
}

// Insert appends rows to table in one batch. Each name in columns must be
// one of mart.MartColumns.
func (c *Conn) Insert(ctx context.Context, table string, columns []string, rows []mart.LoadRow) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	pos := make([]int, len(columns))
	for i, col := range columns {
		pos[i] = columnIndex(col)
		if pos[i] < 0 {
			return fmt.Errorf("unknown column %q", col)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
	batch, err := c.db.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for i, row := range rows {
		values, err := appendValues(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		args := make([]any, len(pos))
		for j, p := range pos {
			args[j] = values[p]
		}
		if err := batch.Append(args...); err != nil {
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch of %d rows: %w", len(rows), err)
	}
	return nil
}

// Close releases the connection.
func (c *Conn) Close() error {
	return c.db.Close()
}

// appendValues returns row in mart.MartColumns order with the date as a
// time.Time, which is what the Date column accepts.
func appendValues(row mart.LoadRow) ([]any, error) {
	values := row.Values()
	date, err := mart.ParseRunDate(row.Date)
	if err != nil {
		return nil, err
	}
	values[columnIndex(mart.ColDate)] = date
	return values, nil
}

func columnIndex(name string) int {
	for i, c := range mart.MartColumns {
		if c == name {
			return i
		}
	}
	return -1
}
