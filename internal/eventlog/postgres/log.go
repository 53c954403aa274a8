// Package pglog writes the download log into a Postgres table.
package pglog

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable receives entries when no table is configured.
const DefaultTable = "downloads"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Log inserts one row per download.
type Log struct {
	pool  pool
	table string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Log, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("eventlog.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Log{pool: p, table: table}, nil
}

// NewWithPool constructs a Log from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Log, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Log{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the table when it does not exist.
func (l *Log) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	downloaded_at TIMESTAMPTZ NOT NULL,
	url TEXT NOT NULL,
	domain TEXT NOT NULL,
	year TEXT NOT NULL,
	file_path TEXT NOT NULL
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", l.table, err)
	}
	return nil
}

// Record inserts entry.
func (l *Log) Record(ctx context.Context, entry eventlog.Entry) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	downloaded_at,
	url,
	domain,
	year,
	file_path
) VALUES (
	$1,$2,$3,$4,$5
)`, l.table)
	if _, err := l.pool.Exec(ctx, query, entry.Timestamp, entry.URL, entry.Domain, entry.Year, entry.FilePath); err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]eventlog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT downloaded_at, url, domain, year, file_path
FROM %s
ORDER BY downloaded_at DESC
LIMIT $1`, l.table)
	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var entries []eventlog.Entry
	for rows.Next() {
		var e eventlog.Entry
		if err := rows.Scan(&e.Timestamp, &e.URL, &e.Domain, &e.Year, &e.FilePath); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return entries, nil
}

// Close releases the pool.
func (l *Log) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}
