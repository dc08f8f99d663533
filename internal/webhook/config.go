package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// TenantConfig is one tenant's webhook subscription: where to deliver, how
// to sign, and which event types are toggled on.
type TenantConfig struct {
	ID            string          `json:"id"`
	Tenant        string          `json:"tenant"`
	WebhookURL    string          `json:"webhook_url"`
	Secret        string          `json:"secret"`
	Enabled       bool            `json:"enabled"`
	EventsEnabled map[string]bool `json:"events_enabled"`
	Filter        string          `json:"filter,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// WantsEvent reports whether the config is on for the given event type.
func (c *TenantConfig) WantsEvent(eventType string) bool {
	return c.Enabled && c.EventsEnabled[eventType]
}

// ConfigStore reads and updates webhook_configs rows.
type ConfigStore struct {
	store    *store.Store
	registry *metadata.Registry
}

func NewConfigStore(s *store.Store, reg *metadata.Registry) *ConfigStore {
	return &ConfigStore{store: s, registry: reg}
}

// Get returns the config for one tenant, or store.ErrNotFound.
func (cs *ConfigStore) Get(ctx context.Context, tenant string) (*TenantConfig, error) {
	pb := cs.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, cs.store.DB,
		fmt.Sprintf("SELECT * FROM webhook_configs WHERE tenant = %s", pb.Add(tenant)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	return configFromRow(row)
}

// GetAll returns every tenant config, ordered by tenant name.
func (cs *ConfigStore) GetAll(ctx context.Context) ([]*TenantConfig, error) {
	rows, err := store.QueryRows(ctx, cs.store.DB,
		"SELECT * FROM webhook_configs ORDER BY tenant")
	if err != nil {
		return nil, err
	}
	configs := make([]*TenantConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := configFromRow(row)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Update merges a patch into one tenant's config. webhook_url, secret,
// enabled and filter merge field-wise; events_enabled replaces the whole
// toggle map when present. Unknown keys and unknown event types fail.
func (cs *ConfigStore) Update(ctx context.Context, tenant string, patch map[string]any) (*TenantConfig, error) {
	existing, err := cs.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var details []engine.ErrorDetail
	for _, key := range sortedPatchKeys(patch) {
		value := patch[key]
		switch key {
		case "webhook_url":
			s, ok := value.(string)
			if !ok || s == "" {
				details = append(details, engine.ErrorDetail{
					Field: key, Rule: "type", Message: "webhook_url must be a non-empty string",
				})
				continue
			}
			existing.WebhookURL = s
		case "secret":
			s, ok := value.(string)
			if !ok || s == "" {
				details = append(details, engine.ErrorDetail{
					Field: key, Rule: "type", Message: "secret must be a non-empty string",
				})
				continue
			}
			existing.Secret = s
		case "enabled":
			b, ok := value.(bool)
			if !ok {
				details = append(details, engine.ErrorDetail{
					Field: key, Rule: "type", Message: "enabled must be a boolean",
				})
				continue
			}
			existing.Enabled = b
		case "filter":
			s, ok := value.(string)
			if !ok {
				details = append(details, engine.ErrorDetail{
					Field: key, Rule: "type", Message: "filter must be a string",
				})
				continue
			}
			existing.Filter = s
		case "events_enabled":
			toggles, errs := cs.parseToggles(value)
			if len(errs) > 0 {
				details = append(details, errs...)
				continue
			}
			existing.EventsEnabled = toggles
		default:
			details = append(details, engine.ErrorDetail{
				Field: key, Rule: "unknown",
				Message: fmt.Sprintf("unknown config field: %s", key),
			})
		}
	}
	if len(details) > 0 {
		return nil, engine.ValidationError(details)
	}

	eventsJSON, err := json.Marshal(existing.EventsEnabled)
	if err != nil {
		return nil, fmt.Errorf("marshal events_enabled: %w", err)
	}
	existing.UpdatedAt = store.NowString()

	pb := cs.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, cs.store.DB,
		fmt.Sprintf(`UPDATE webhook_configs
		 SET webhook_url = %s, secret = %s, enabled = %s, events_enabled = %s, filter = %s, updated_at = %s
		 WHERE tenant = %s`,
			pb.Add(existing.WebhookURL), pb.Add(existing.Secret), pb.Add(existing.Enabled),
			pb.Add(string(eventsJSON)), pb.Add(existing.Filter), pb.Add(existing.UpdatedAt),
			pb.Add(tenant)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update webhook config: %w", err)
	}
	return existing, nil
}

// parseToggles validates a replacement toggle map from JSON input.
func (cs *ConfigStore) parseToggles(value any) (map[string]bool, []engine.ErrorDetail) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, []engine.ErrorDetail{{
			Field: "events_enabled", Rule: "type",
			Message: "events_enabled must be an object of event type to boolean",
		}}
	}

	known := make(map[string]bool)
	for _, et := range cs.registry.EventTypes() {
		known[et] = true
	}

	var details []engine.ErrorDetail
	toggles := make(map[string]bool, len(raw))
	for _, et := range sortedPatchKeys(raw) {
		if !known[et] {
			details = append(details, engine.ErrorDetail{
				Field: "events_enabled", Rule: "unknown",
				Message: fmt.Sprintf("unknown event type: %s", et),
			})
			continue
		}
		b, ok := raw[et].(bool)
		if !ok {
			details = append(details, engine.ErrorDetail{
				Field: "events_enabled", Rule: "type",
				Message: fmt.Sprintf("%s toggle must be a boolean", et),
			})
			continue
		}
		toggles[et] = b
	}
	if len(details) > 0 {
		return nil, details
	}
	return toggles, nil
}

func configFromRow(row map[string]any) (*TenantConfig, error) {
	store.NormalizeBooleans([]map[string]any{row}, []string{"enabled"})

	cfg := &TenantConfig{
		EventsEnabled: make(map[string]bool),
	}
	cfg.ID, _ = row["id"].(string)
	cfg.Tenant, _ = row["tenant"].(string)
	cfg.WebhookURL, _ = row["webhook_url"].(string)
	cfg.Secret, _ = row["secret"].(string)
	cfg.Enabled, _ = row["enabled"].(bool)
	cfg.Filter, _ = row["filter"].(string)
	cfg.CreatedAt, _ = row["created_at"].(string)
	cfg.UpdatedAt, _ = row["updated_at"].(string)

	if raw, ok := row["events_enabled"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.EventsEnabled); err != nil {
			return nil, fmt.Errorf("decode events_enabled for %s: %w", cfg.Tenant, err)
		}
	}
	return cfg, nil
}

func sortedPatchKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
