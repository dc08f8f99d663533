package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/seed"
	"mockcrm-backend/internal/store"
)

// LatencyTests measures end-to-end propagation: a test creates a real record
// through the CRUD service, the caller's receiver observes the webhook, and
// verification closes the loop with the elapsed time.
type LatencyTests struct {
	store     *store.Store
	registry  *metadata.Registry
	resources *engine.Resources
	runner    *Runner

	now func() time.Time
}

func NewLatencyTests(s *store.Store, reg *metadata.Registry, resources *engine.Resources, runner *Runner) *LatencyTests {
	return &LatencyTests{
		store:     s,
		registry:  reg,
		resources: resources,
		runner:    runner,
		now:       time.Now,
	}
}

// Start creates one record and registers a pending latency test for it.
func (lt *LatencyTests) Start(ctx context.Context, tenant, kind string) (map[string]any, error) {
	schema := lt.registry.Get(tenant, kind)
	if schema == nil {
		return nil, engine.UnknownPartitionError(tenant, kind)
	}

	record, err := lt.resources.Create(ctx, schema, seed.Record(lt.runner.faker, schema))
	if err != nil {
		return nil, err
	}
	resourceID, _ := record["id"].(string)

	id := store.GenerateUUID()
	testTimestamp := store.FormatTime(lt.now())
	pb := lt.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, lt.store.DB,
		fmt.Sprintf(`INSERT INTO latency_tests (id, tenant, resource_kind, resource_id, operation, test_timestamp, status)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(tenant), pb.Add(kind), pb.Add(resourceID),
			pb.Add(engine.OpCreate), pb.Add(testTimestamp), pb.Add("pending")),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert latency test: %w", err)
	}

	return map[string]any{
		"id":             id,
		"tenant":         tenant,
		"resource_kind":  kind,
		"resource_id":    resourceID,
		"operation":      engine.OpCreate,
		"test_timestamp": testTimestamp,
		"status":         "pending",
	}, nil
}

// List returns latency tests, newest first.
func (lt *LatencyTests) List(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	pb := lt.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, lt.store.DB,
		fmt.Sprintf("SELECT * FROM latency_tests ORDER BY test_timestamp DESC LIMIT %s", pb.Add(limit)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// Verify marks a pending test as observed and records the elapsed time.
func (lt *LatencyTests) Verify(ctx context.Context, id string) (map[string]any, error) {
	pb := lt.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, lt.store.DB,
		fmt.Sprintf("SELECT * FROM latency_tests WHERE id = %s", pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFoundError("latency test", id)
	}
	if err != nil {
		return nil, err
	}

	started, _ := row["test_timestamp"].(string)
	startedAt, err := time.Parse(store.TimeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("parse test timestamp: %w", err)
	}
	verifiedAt := lt.now()
	latency := verifiedAt.Sub(startedAt).Milliseconds()

	pb = lt.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, lt.store.DB,
		fmt.Sprintf(`UPDATE latency_tests
		 SET verification_timestamp = %s, latency_ms = %s, status = %s WHERE id = %s`,
			pb.Add(store.FormatTime(verifiedAt)), pb.Add(latency), pb.Add("verified"), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("verify latency test: %w", err)
	}

	row["verification_timestamp"] = store.FormatTime(verifiedAt)
	row["latency_ms"] = latency
	row["status"] = "verified"
	return row, nil
}
