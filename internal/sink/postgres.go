package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeremyhinds/crush-tools/internal/config"
	"github.com/jeremyhinds/crush-tools/internal/core"
	"github.com/jeremyhinds/crush-tools/internal/logging"
)

// ErrNoDatabase is returned when a PostgreSQL sink is requested without a
// connection string.
var ErrNoDatabase = errors.New("postgres sink: DATABASE_URL is not set")

// OpenPool connects to PostgreSQL using the database settings and verifies
// the connection.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, ErrNoDatabase
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}
	return pool, nil
}

// Postgres copies the result into a table, creating it when missing. Table
// may be schema qualified ("reports.daily").
type Postgres struct {
	Pool  *pgxpool.Pool
	Table string

	// Truncate empties the table before copying.
	Truncate bool
}

func (s Postgres) identifier() (pgx.Identifier, error) {
	if strings.TrimSpace(s.Table) == "" {
		return nil, errors.New("postgres sink: table name is required")
	}
	parts := strings.Split(s.Table, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("postgres sink: invalid table name %q", s.Table)
		}
	}
	return pgx.Identifier(parts), nil
}

// CreateTableSQL returns the CREATE TABLE IF NOT EXISTS statement for res.
func CreateTableSQL(table pgx.Identifier, res *core.Result) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table.Sanitize())
	b.WriteString(" (")
	for i, c := range Columns(res) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c.Name}.Sanitize())
		switch c.Kind {
		case KeyColumn:
			b.WriteString(" TEXT NOT NULL")
		case SumColumn:
			b.WriteString(" DOUBLE PRECISION NOT NULL")
		case CountColumn:
			b.WriteString(" BIGINT NOT NULL")
		case AverageColumn:
			b.WriteString(" DOUBLE PRECISION")
		}
	}
	b.WriteString(")")
	return b.String()
}

// copyRows flattens res into CopyFrom rows in column order.
func copyRows(res *core.Result) [][]any {
	rows := make([][]any, 0, len(res.Rows))
	nkeys := len(res.Fields.Keys)
	for _, row := range res.Rows {
		rec := row.Record
		keys := res.KeyFields(row)
		values := make([]any, 0, nkeys+len(rec.Sums)+len(rec.Counts)+len(rec.AverageSums))
		for i := range nkeys {
			values = append(values, keyValue(keys, i))
		}
		for _, sum := range rec.Sums {
			values = append(values, sum)
		}
		for _, count := range rec.Counts {
			values = append(values, int64(count))
		}
		for i := range rec.AverageSums {
			if avg, ok := rec.Average(i); ok {
				values = append(values, avg)
			} else {
				values = append(values, nil)
			}
		}
		rows = append(rows, values)
	}
	return rows
}

func (s Postgres) Write(ctx context.Context, res *core.Result) error {
	if s.Pool == nil {
		return ErrNoDatabase
	}
	table, err := s.identifier()
	if err != nil {
		return err
	}

	cols := Columns(res)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	// All rows land atomically
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres sink: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, CreateTableSQL(table, res)); err != nil {
		return fmt.Errorf("postgres sink: create table %s: %w", table.Sanitize(), err)
	}
	if s.Truncate {
		if _, err := tx.Exec(ctx, "TRUNCATE "+table.Sanitize()); err != nil {
			return fmt.Errorf("postgres sink: truncate %s: %w", table.Sanitize(), err)
		}
	}

	n, err := tx.CopyFrom(ctx, table, names, pgx.CopyFromRows(copyRows(res)))
	if err != nil {
		return fmt.Errorf("postgres sink: copy into %s: %w", table.Sanitize(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres sink: commit: %w", err)
	}

	logging.FromContext(ctx).Info("rows copied to postgres", "table", table.Sanitize(), "rows", n)
	return nil
}
