package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// Enqueuer accepts a webhook event for asynchronous delivery. The webhook
// package provides the real implementation; mutations only need this slice
// of it.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenant, eventType, resourceKind, resourceID string, payload map[string]any) (string, error)
}

// Resources implements CRUD over the tenant-partitioned dynamic tables.
// Every mutation records a change-history entry and offers an event to the
// webhook queue before returning.
type Resources struct {
	store   *store.Store
	changes *ChangeRecorder
	queue   Enqueuer
}

func NewResources(s *store.Store, changes *ChangeRecorder, queue Enqueuer) *Resources {
	return &Resources{store: s, changes: changes, queue: queue}
}

// List returns a page of records plus the total match count.
func (r *Resources) List(ctx context.Context, schema *metadata.Schema, params *ListParams) ([]map[string]any, int64, error) {
	countSQL, countArgs := params.BuildCount(r.store.Dialect, schema.Table())
	row, err := store.QueryRow(ctx, r.store.DB, countSQL, countArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", schema.Table(), err)
	}
	total := toInt64(row["count"])

	selectSQL, selectArgs := params.BuildSelect(r.store.Dialect, schema.Table())
	rows, err := store.QueryRows(ctx, r.store.DB, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", schema.Table(), err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, total, nil
}

// Get returns a single record by id.
func (r *Resources) Get(ctx context.Context, schema *metadata.Schema, id string) (map[string]any, error) {
	pb := r.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, r.store.DB,
		fmt.Sprintf("SELECT * FROM %s WHERE id = %s", schema.Table(), pb.Add(id)),
		pb.Params()...)
	if err == store.ErrNotFound {
		return nil, NotFoundError(schema.Kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", schema.Table(), id, err)
	}
	return row, nil
}

// Create validates the payload, inserts the record with server-generated id
// and timestamps, records the change and enqueues a created event.
func (r *Resources) Create(ctx context.Context, schema *metadata.Schema, payload map[string]any) (map[string]any, error) {
	if err := validatePayload(schema, payload, true); err != nil {
		return nil, err
	}

	now := store.NowString()
	record := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		record[k] = v
	}
	record["id"] = store.GenerateUUID()
	record["created_at"] = now
	record["updated_at"] = now

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	columns := sortedKeys(record)
	pb := r.store.Dialect.NewParamBuilder()
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		placeholders[i] = pb.Add(record[col])
	}
	_, err = store.Exec(ctx, tx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			schema.Table(), strings.Join(columns, ", "), strings.Join(placeholders, ", ")),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", schema.Table(), r.store.Dialect.MapError(err))
	}

	id := record["id"].(string)
	if err := r.changes.Record(ctx, tx, schema, id, OpCreate, nil, record); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.offerEvent(ctx, schema, OpCreate, id, record)
	return record, nil
}

// Update merges a partial payload over the existing record. The id and
// created_at columns never change; updated_at is refreshed.
func (r *Resources) Update(ctx context.Context, schema *metadata.Schema, id string, payload map[string]any) (map[string]any, error) {
	existing, err := r.Get(ctx, schema, id)
	if err != nil {
		return nil, err
	}

	// System columns in the payload are dropped, not errors.
	delete(payload, "id")
	delete(payload, "created_at")
	delete(payload, "updated_at")
	if err := validatePayload(schema, payload, false); err != nil {
		return nil, err
	}

	record := make(map[string]any, len(existing))
	for k, v := range existing {
		record[k] = v
	}
	for k, v := range payload {
		record[k] = v
	}
	record["updated_at"] = store.NowString()

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pb := r.store.Dialect.NewParamBuilder()
	var sets []string
	for _, col := range sortedKeys(record) {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(record[col])))
	}
	_, err = store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
			schema.Table(), strings.Join(sets, ", "), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", schema.Table(), id, r.store.Dialect.MapError(err))
	}

	if err := r.changes.Record(ctx, tx, schema, id, OpUpdate, existing, record); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.offerEvent(ctx, schema, OpUpdate, id, record)
	return record, nil
}

// Delete removes the record, records the change with the final snapshot and
// enqueues a deleted event carrying that snapshot.
func (r *Resources) Delete(ctx context.Context, schema *metadata.Schema, id string) error {
	existing, err := r.Get(ctx, schema, id)
	if err != nil {
		return err
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pb := r.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE id = %s", schema.Table(), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", schema.Table(), id, err)
	}

	if err := r.changes.Record(ctx, tx, schema, id, OpDelete, existing, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.offerEvent(ctx, schema, OpDelete, id, existing)
	return nil
}

func (r *Resources) offerEvent(ctx context.Context, schema *metadata.Schema, operation, id string, data map[string]any) {
	if r.queue == nil {
		return
	}
	eventType := schema.EventType(operation)
	if _, err := r.queue.Enqueue(ctx, schema.Tenant, eventType, schema.Kind, id, data); err != nil {
		log.Printf("ERROR: enqueue %s for %s/%s: %v", eventType, schema.Tenant, id, err)
	}
}

// validatePayload checks a create (full) or update (partial) payload against
// the schema. Unknown fields and type mismatches are rejected; for creates,
// required fields must be present and non-null.
func validatePayload(schema *metadata.Schema, payload map[string]any, requireAll bool) error {
	var details []ErrorDetail

	for key, value := range payload {
		field := schema.GetField(key)
		if field == nil {
			details = append(details, ErrorDetail{
				Field: key, Rule: "unknown",
				Message: fmt.Sprintf("unknown field: %s", key),
			})
			continue
		}
		if value == nil {
			if field.Required {
				details = append(details, ErrorDetail{
					Field: key, Rule: "required",
					Message: fmt.Sprintf("%s must not be null", key),
				})
			}
			continue
		}
		if msg := checkType(field, value); msg != "" {
			details = append(details, ErrorDetail{Field: key, Rule: "type", Message: msg})
		}
	}

	if requireAll {
		for _, f := range schema.RequiredFields() {
			if _, ok := payload[f.Name]; !ok {
				details = append(details, ErrorDetail{
					Field: f.Name, Rule: "required",
					Message: fmt.Sprintf("%s is required", f.Name),
				})
			}
		}
	}

	if len(details) > 0 {
		sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
		return ValidationError(details)
	}
	return nil
}

func checkType(field *metadata.Field, value any) string {
	switch field.Type {
	case "int":
		// JSON numbers decode to float64; internal callers pass ints.
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Sprintf("%s must be an integer", field.Name)
			}
		default:
			return fmt.Sprintf("%s must be an integer", field.Name)
		}
	case "decimal":
		switch value.(type) {
		case float64, int64, int:
		default:
			return fmt.Sprintf("%s must be a number", field.Name)
		}
	default:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s must be a string", field.Name)
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
