package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"mockcrm-backend/internal/metadata"
)

// Bootstrap creates the system tables and seeds one webhook config row per
// tenant. Default config: disabled, every event type toggled on.
func (s *Store) Bootstrap(ctx context.Context, reg *metadata.Registry) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedWebhookConfigs(ctx, reg); err != nil {
		return fmt.Errorf("seed webhook configs: %w", err)
	}
	return nil
}

func (s *Store) seedWebhookConfigs(ctx context.Context, reg *metadata.Registry) error {
	eventsEnabled := make(map[string]bool)
	for _, et := range reg.EventTypes() {
		eventsEnabled[et] = true
	}
	eventsJSON, err := json.Marshal(eventsEnabled)
	if err != nil {
		return err
	}

	now := NowString()
	for _, tenant := range reg.Tenants() {
		pb := s.Dialect.NewParamBuilder()
		row, err := QueryRow(ctx, s.DB,
			fmt.Sprintf("SELECT COUNT(*) AS count FROM webhook_configs WHERE tenant = %s", pb.Add(tenant)),
			pb.Params()...)
		if err != nil {
			return err
		}
		if toInt64(row["count"]) > 0 {
			continue
		}

		pb = s.Dialect.NewParamBuilder()
		_, err = Exec(ctx, s.DB,
			fmt.Sprintf(`INSERT INTO webhook_configs (id, tenant, webhook_url, secret, enabled, events_enabled, filter, created_at, updated_at)
			 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
				pb.Add("config-"+tenant), pb.Add(tenant),
				pb.Add(fmt.Sprintf("http://localhost:4000/webhooks/%s", tenant)),
				pb.Add(fmt.Sprintf("secret-%s-%d", tenant, time.Now().UnixMilli())),
				pb.Add(false), pb.Add(string(eventsJSON)), pb.Add(""),
				pb.Add(now), pb.Add(now)),
			pb.Params()...)
		if err != nil {
			return err
		}
		log.Printf("Seeded default webhook config for %s (disabled)", tenant)
	}
	return nil
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
