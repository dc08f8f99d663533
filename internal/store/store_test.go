package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"mockcrm-backend/internal/metadata"
)

func newTestStore(t *testing.T) (*Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()

	s, err := NewMemory(ctx)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	reg.Load(metadata.Catalog())
	if err := s.Bootstrap(ctx, reg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s, reg
}

func TestBootstrapCreatesSystemTables(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, table := range []string{
		"webhook_events", "webhook_deliveries", "webhook_configs",
		"change_history", "api_logs", "latency_tests",
	} {
		exists, err := s.Dialect.TableExists(ctx, s.DB, table)
		if err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestBootstrapSeedsDisabledConfigs(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()

	rows, err := QueryRows(ctx, s.DB, "SELECT * FROM webhook_configs ORDER BY tenant")
	if err != nil {
		t.Fatalf("query configs: %v", err)
	}
	if len(rows) != len(reg.Tenants()) {
		t.Fatalf("expected %d configs, got %d", len(reg.Tenants()), len(rows))
	}
	NormalizeBooleans(rows, []string{"enabled"})
	for _, row := range rows {
		if enabled, _ := row["enabled"].(bool); enabled {
			t.Errorf("config for %v should be seeded disabled", row["tenant"])
		}
	}

	// A second bootstrap must not duplicate or overwrite.
	if err := s.Bootstrap(ctx, reg); err != nil {
		t.Fatalf("re-bootstrap: %v", err)
	}
	again, err := QueryRows(ctx, s.DB, "SELECT * FROM webhook_configs")
	if err != nil {
		t.Fatalf("query configs: %v", err)
	}
	if len(again) != len(rows) {
		t.Errorf("re-bootstrap changed config count: %d -> %d", len(rows), len(again))
	}
}

func TestMigratorCreatesResourceTables(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()

	for _, schema := range reg.All() {
		exists, err := s.Dialect.TableExists(ctx, s.DB, schema.Table())
		if err != nil {
			t.Fatalf("check %s: %v", schema.Table(), err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", schema.Table())
		}
	}

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "pipedrive_companies")
	if err != nil {
		t.Fatalf("get columns: %v", err)
	}
	for _, want := range []string{"id", "name", "people_count", "created_at", "updated_at"} {
		if _, ok := cols[want]; !ok {
			t.Errorf("missing column %s on pipedrive_companies", want)
		}
	}
}

func TestMigratorAddsNewColumns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	schema := &metadata.Schema{
		Tenant: "pipedrive", Kind: "companies", EventName: "company",
		Fields: []metadata.Field{
			{Name: "name", Type: "string", Required: true},
			{Name: "vat_number", Type: "string"},
		},
	}
	if err := NewMigrator(s).Migrate(ctx, schema); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "pipedrive_companies")
	if err != nil {
		t.Fatalf("get columns: %v", err)
	}
	if _, ok := cols["vat_number"]; !ok {
		t.Error("expected vat_number column to be added")
	}
}

func TestQueryRowNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := QueryRow(context.Background(), s.DB,
		"SELECT * FROM webhook_configs WHERE tenant = ?1", "zoho")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUniqueViolationMapped(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := Exec(ctx, s.DB,
		`INSERT INTO webhook_configs (id, tenant, webhook_url, secret, enabled, events_enabled, filter, created_at, updated_at)
		 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`,
		"dup", "salesforce", "http://x", "s", false, "{}", "", NowString(), NowString())
	if err == nil {
		t.Fatal("expected unique violation on duplicate tenant")
	}
	if !errors.Is(s.Dialect.MapError(err), ErrUniqueViolation) {
		t.Errorf("MapError(%v) should wrap ErrUniqueViolation", err)
	}
}

func TestTimeLayoutOrdering(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	earlier := FormatTime(base)
	later := FormatTime(base.Add(5 * time.Millisecond))
	if !(earlier < later) {
		t.Errorf("expected lexicographic order: %q < %q", earlier, later)
	}
	if len(earlier) != len(later) {
		t.Errorf("timestamps must be fixed width: %q vs %q", earlier, later)
	}

	parsed, err := time.Parse(TimeLayout, later)
	if err != nil {
		t.Fatalf("round trip parse: %v", err)
	}
	if !parsed.Equal(base.Add(5 * time.Millisecond)) {
		t.Errorf("round trip mismatch: %v", parsed)
	}
}

func TestNormalizeBooleans(t *testing.T) {
	rows := []map[string]any{
		{"enabled": int64(1), "count": int64(3)},
		{"enabled": int64(0), "count": int64(0)},
	}
	NormalizeBooleans(rows, []string{"enabled"})

	if rows[0]["enabled"] != true || rows[1]["enabled"] != false {
		t.Errorf("enabled not normalized: %v, %v", rows[0]["enabled"], rows[1]["enabled"])
	}
	if _, ok := rows[0]["count"].(int64); !ok {
		t.Error("count should stay an int64")
	}
}
