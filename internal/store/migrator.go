package store

import (
	"context"
	"fmt"
	"strings"

	"mockcrm-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll ensures a record table exists for every registered schema.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, schema := range reg.All() {
		if err := m.Migrate(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the record table matches the schema descriptor.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, schema *metadata.Schema) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, schema.Table())
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, schema)
	}

	return m.alterTable(ctx, schema)
}

func (m *Migrator) createTable(ctx context.Context, schema *metadata.Schema) error {
	d := m.store.Dialect

	cols := []string{"id TEXT PRIMARY KEY"}
	for _, f := range schema.Fields {
		col := f.Name + " " + d.ColumnType(f.Type, f.Precision)
		if f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols,
		"created_at "+d.ColumnType("timestamp", 0)+" NOT NULL",
		"updated_at "+d.ColumnType("timestamp", 0)+" NOT NULL",
	)

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", schema.Table(), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", schema.Table(), err)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)",
		schema.Table(), schema.Table())
	if _, err := m.store.DB.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create index for %s: %w", schema.Table(), err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, schema *metadata.Schema) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, schema.Table())
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", schema.Table(), err)
	}

	for _, f := range schema.Fields {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		// No NOT NULL on added columns: existing rows have no value for them.
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			schema.Table(), f.Name, m.store.Dialect.ColumnType(f.Type, f.Precision))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", schema.Table(), f.Name, err)
		}
	}

	return nil
}
