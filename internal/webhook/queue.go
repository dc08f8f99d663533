package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"mockcrm-backend/internal/store"
)

// Queue decides whether a mutation produces a webhook event, persists the
// accepted ones and hands them to the deliverer. It satisfies the engine's
// Enqueuer interface.
type Queue struct {
	store     *store.Store
	configs   *ConfigStore
	deliverer *Deliverer
	scheduler Scheduler

	mu       sync.Mutex
	programs map[string]*vm.Program // filter source -> compiled program
}

func NewQueue(s *store.Store, configs *ConfigStore, deliverer *Deliverer, scheduler Scheduler) *Queue {
	return &Queue{
		store:     s,
		configs:   configs,
		deliverer: deliverer,
		scheduler: scheduler,
		programs:  make(map[string]*vm.Program),
	}
}

// Enqueue gates the event on the tenant's config, stores it and kicks off
// delivery. It returns the stored event id, or "" when the event was
// dropped by the enabled flag, the event toggle or the filter expression.
func (q *Queue) Enqueue(ctx context.Context, tenant, eventType, resourceKind, resourceID string, payload map[string]any) (string, error) {
	cfg, err := q.configs.Get(ctx, tenant)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load config for %s: %w", tenant, err)
	}
	if !cfg.WantsEvent(eventType) {
		return "", nil
	}
	if !q.passesFilter(cfg, tenant, eventType, resourceKind, resourceID, payload) {
		return "", nil
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}

	eventID := store.GenerateUUID()
	pb := q.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, q.store.DB,
		fmt.Sprintf(`INSERT INTO webhook_events (id, tenant, event_type, resource_kind, resource_id, payload, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(eventID), pb.Add(tenant), pb.Add(eventType), pb.Add(resourceKind),
			pb.Add(resourceID), pb.Add(string(payloadJSON)), pb.Add(store.NowString())),
		pb.Params()...)
	if err != nil {
		return "", fmt.Errorf("insert webhook event: %w", err)
	}

	// Delivery runs off the request path.
	q.scheduler.Schedule(0, func() {
		q.deliverer.Deliver(context.Background(), eventID)
	})
	return eventID, nil
}

// passesFilter evaluates the config's optional filter expression. An empty
// filter always passes. A filter that fails to compile or evaluate is logged
// and treated as passing, so a bad expression never silently drops events.
func (q *Queue) passesFilter(cfg *TenantConfig, tenant, eventType, resourceKind, resourceID string, payload map[string]any) bool {
	if cfg.Filter == "" {
		return true
	}

	program, err := q.compile(cfg.Filter)
	if err != nil {
		log.Printf("ERROR: compile webhook filter for %s: %v", tenant, err)
		return true
	}

	out, err := expr.Run(program, map[string]any{
		"event_type":    eventType,
		"tenant":        tenant,
		"resource_kind": resourceKind,
		"resource_id":   resourceID,
		"data":          payload,
	})
	if err != nil {
		log.Printf("ERROR: evaluate webhook filter for %s: %v", tenant, err)
		return true
	}
	pass, ok := out.(bool)
	return !ok || pass
}

func (q *Queue) compile(source string) (*vm.Program, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if program, ok := q.programs[source]; ok {
		return program, nil
	}
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	q.programs[source] = program
	return program, nil
}
