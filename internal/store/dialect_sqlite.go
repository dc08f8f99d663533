package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case "string", "text":
		return "TEXT"
	case "int", "integer", "bigint":
		return "INTEGER"
	case "decimal", "float":
		return "REAL"
	case "boolean":
		return "INTEGER"
	case "timestamp":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

// No foreign key from webhook_deliveries to webhook_events: manually triggered
// deliveries carry the sentinel event id "manual-trigger".
const sqliteSystemTablesSQL = `
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
    enabled        INTEGER NOT NULL DEFAULT 0,
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
    response_time_ms REAL NOT NULL,
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
var _ Dialect = (*SQLiteDialect)(nil)
