package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// Mutation operations recorded in change history.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeRecorder appends one immutable audit entry per successful mutation
// and publishes a data_changed event for live observers.
type ChangeRecorder struct {
	store *store.Store
	bus   *bus.Bus
}

func NewChangeRecorder(s *store.Store, b *bus.Bus) *ChangeRecorder {
	return &ChangeRecorder{store: s, bus: b}
}

// Record appends a change entry. old/new may be nil for CREATE/DELETE.
func (r *ChangeRecorder) Record(ctx context.Context, q store.Querier, schema *metadata.Schema,
	resourceID, operation string, oldData, newData map[string]any) error {

	var oldJSON, newJSON any
	if oldData != nil {
		b, err := json.Marshal(oldData)
		if err != nil {
			return fmt.Errorf("marshal old snapshot: %w", err)
		}
		oldJSON = string(b)
	}
	if newData != nil {
		b, err := json.Marshal(newData)
		if err != nil {
			return fmt.Errorf("marshal new snapshot: %w", err)
		}
		newJSON = string(b)
	}

	timestamp := store.NowString()
	pb := r.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, q,
		fmt.Sprintf(`INSERT INTO change_history (id, tenant, resource_kind, resource_id, operation, old_data, new_data, timestamp)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(store.GenerateUUID()), pb.Add(schema.Tenant), pb.Add(schema.Kind),
			pb.Add(resourceID), pb.Add(operation), pb.Add(oldJSON), pb.Add(newJSON), pb.Add(timestamp)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}

	if r.bus != nil {
		r.bus.Publish(bus.KindDataChanged, map[string]any{
			"tenant":        schema.Tenant,
			"resource_kind": schema.Kind,
			"resource_id":   resourceID,
			"operation":     operation,
			"timestamp":     timestamp,
		})
	}
	return nil
}

// Recent returns the newest change entries, most recent first, with
// old/new snapshots decoded.
func (r *ChangeRecorder) Recent(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	pb := r.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, r.store.DB,
		fmt.Sprintf("SELECT * FROM change_history ORDER BY timestamp DESC LIMIT %s", pb.Add(limit)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}

	for _, row := range rows {
		row["old_data"] = decodeSnapshot(row["old_data"])
		row["new_data"] = decodeSnapshot(row["new_data"])
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func decodeSnapshot(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return s
	}
	return decoded
}
