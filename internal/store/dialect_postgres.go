package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case "string", "text":
		return "TEXT"
	case "int", "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "decimal", "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "timestamp":
		// Timestamps are stored as RFC3339 text so responses echo them verbatim
		// and lexicographic ordering matches chronological ordering.
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS webhook_events (
    id            TEXT PRIMARY KEY,
    tenant        TEXT NOT NULL,
    event_type    TEXT NOT NULL,
    resource_kind TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    payload       TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              TEXT PRIMARY KEY,
    event_id        TEXT NOT NULL,
    tenant          TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    destination_url TEXT NOT NULL,
    status          TEXT NOT NULL,
    request_headers TEXT NOT NULL,
    request_body    TEXT NOT NULL,
    response_status INTEGER,
    response_body   TEXT,
    error_message   TEXT,
    attempt_number  INTEGER NOT NULL,
    created_at      TEXT NOT NULL,
    delivered_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_event_id ON webhook_deliveries(event_id);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_tenant ON webhook_deliveries(tenant);

CREATE TABLE IF NOT EXISTS webhook_configs (
    id             TEXT PRIMARY KEY,
    tenant         TEXT NOT NULL UNIQUE,
    webhook_url    TEXT NOT NULL,
    secret         TEXT NOT NULL,
    enabled        BOOLEAN NOT NULL DEFAULT false,
    events_enabled TEXT NOT NULL,
    filter         TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS change_history (
    id            TEXT PRIMARY KEY,
    tenant        TEXT NOT NULL,
    resource_kind TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    operation     TEXT NOT NULL,
    old_data      TEXT,
    new_data      TEXT,
    timestamp     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_history_timestamp ON change_history(timestamp);

CREATE TABLE IF NOT EXISTS api_logs (
    id               TEXT PRIMARY KEY,
    tenant           TEXT NOT NULL,
    method           TEXT NOT NULL,
    endpoint         TEXT NOT NULL,
    resource_kind    TEXT,
    status_code      INTEGER NOT NULL,
    response_time_ms DOUBLE PRECISION NOT NULL,
    request_headers  TEXT NOT NULL,
    request_body     TEXT,
    request_query    TEXT,
    response_body    TEXT,
    error_message    TEXT,
    timestamp        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_logs_timestamp ON api_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_api_logs_tenant ON api_logs(tenant);

CREATE TABLE IF NOT EXISTS latency_tests (
    id                     TEXT PRIMARY KEY,
    tenant                 TEXT NOT NULL,
    resource_kind          TEXT NOT NULL,
    resource_id            TEXT NOT NULL,
    operation              TEXT NOT NULL,
    test_timestamp         TEXT NOT NULL,
    verification_timestamp TEXT,
    latency_ms             INTEGER,
    status                 TEXT NOT NULL
);
`

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
