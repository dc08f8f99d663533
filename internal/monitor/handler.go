package monitor

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// Handler serves the read-only observability endpoints plus the destructive
// reset/clear operations used between test runs.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	changes  *engine.ChangeRecorder
}

func NewHandler(s *store.Store, reg *metadata.Registry, changes *engine.ChangeRecorder) *Handler {
	return &Handler{store: s, registry: reg, changes: changes}
}

func (h *Handler) metrics(c *fiber.Ctx) error {
	ctx := c.Context()

	requests, err := store.QueryRow(ctx, h.store.DB,
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0) AS errors,
		        COALESCE(AVG(response_time_ms), 0) AS avg_response_time_ms
		 FROM api_logs`)
	if err != nil {
		return err
	}

	perTenant, err := store.QueryRows(ctx, h.store.DB,
		`SELECT tenant, COUNT(*) AS count FROM api_logs
		 WHERE tenant != '' GROUP BY tenant ORDER BY tenant`)
	if err != nil {
		return err
	}

	deliveries, err := store.QueryRows(ctx, h.store.DB,
		"SELECT status, COUNT(*) AS count FROM webhook_deliveries GROUP BY status ORDER BY status")
	if err != nil {
		return err
	}

	changeCount, err := store.QueryRow(ctx, h.store.DB,
		"SELECT COUNT(*) AS count FROM change_history")
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"requests":           requests,
		"requests_by_tenant": orEmpty(perTenant),
		"webhook_deliveries": orEmpty(deliveries),
		"change_count":       changeCount["count"],
	})
}

func (h *Handler) logs(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"), 100)
	if err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	query := "SELECT * FROM api_logs"
	if tenant := c.Query("tenant"); tenant != "" {
		query += " WHERE tenant = " + pb.Add(tenant)
	}
	query += " ORDER BY timestamp DESC LIMIT " + pb.Add(limit)

	rows, err := store.QueryRows(c.Context(), h.store.DB, query, pb.Params()...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orEmpty(rows)})
}

// timeline merges recent API traffic, data changes and webhook deliveries
// into one reverse-chronological feed.
func (h *Handler) timeline(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"), 50)
	if err != nil {
		return err
	}
	ctx := c.Context()

	entries, err := h.collectTimeline(ctx, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}

func (h *Handler) collectTimeline(ctx context.Context, limit int) ([]map[string]any, error) {
	var entries []map[string]any

	add := func(kind, tsColumn, table string) error {
		pb := h.store.Dialect.NewParamBuilder()
		rows, err := store.QueryRows(ctx, h.store.DB,
			fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC LIMIT %s", table, tsColumn, pb.Add(limit)),
			pb.Params()...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			entries = append(entries, map[string]any{
				"kind":      kind,
				"timestamp": row[tsColumn],
				"detail":    row,
			})
		}
		return nil
	}

	if err := add("api_request", "timestamp", "api_logs"); err != nil {
		return nil, err
	}
	if err := add("data_changed", "timestamp", "change_history"); err != nil {
		return nil, err
	}
	if err := add("webhook_sent", "created_at", "webhook_deliveries"); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, _ := entries[i]["timestamp"].(string)
		tj, _ := entries[j]["timestamp"].(string)
		return ti > tj
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	return entries, nil
}

func (h *Handler) recentChanges(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"), 50)
	if err != nil {
		return err
	}
	rows, err := h.changes.Recent(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// dataDump returns raw rows from one resource table for inspection.
func (h *Handler) dataDump(c *fiber.Ctx) error {
	tenant := c.Params("tenant")
	kind := c.Params("resource")
	schema := h.registry.Get(tenant, kind)
	if schema == nil {
		return engine.UnknownPartitionError(tenant, kind)
	}
	limit, err := parseLimit(c.Query("limit"), 100)
	if err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT * FROM %s ORDER BY created_at DESC LIMIT %s", schema.Table(), pb.Add(limit)),
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orEmpty(rows)})
}

// reset clears all resource tables and activity history. Webhook configs
// survive so receivers stay wired across runs.
func (h *Handler) reset(c *fiber.Ctx) error {
	ctx := c.Context()
	cleared := make(map[string]int64)

	for _, schema := range h.registry.All() {
		n, err := store.Exec(ctx, h.store.DB, "DELETE FROM "+schema.Table())
		if err != nil {
			return fmt.Errorf("clear %s: %w", schema.Table(), err)
		}
		cleared[schema.Table()] = n
	}
	for _, table := range []string{"api_logs", "change_history", "webhook_deliveries", "webhook_events", "latency_tests"} {
		n, err := store.Exec(ctx, h.store.DB, "DELETE FROM "+table)
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		cleared[table] = n
	}
	return c.JSON(fiber.Map{"cleared": cleared})
}

func (h *Handler) clearLogs(c *fiber.Ctx) error {
	n, err := store.Exec(c.Context(), h.store.DB, "DELETE FROM api_logs")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (h *Handler) clearChanges(c *fiber.Ctx) error {
	n, err := store.Exec(c.Context(), h.store.DB, "DELETE FROM change_history")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func parseLimit(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, engine.ValidationError([]engine.ErrorDetail{{
			Field: "limit", Rule: "range", Message: "limit must be a positive integer",
		}})
	}
	if n > 500 {
		n = 500
	}
	return n, nil
}

func orEmpty(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
