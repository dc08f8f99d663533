package webhook

import (
	"context"
	"testing"
)

func TestEnqueueSkipsDisabledConfig(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.queue.Enqueue(context.Background(),
		"salesforce", "contact.created", "contacts", "r1", map[string]any{"Email": "a@b.c"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "" {
		t.Errorf("disabled config must drop the event, got id %q", id)
	}
	if len(env.events(t)) != 0 {
		t.Error("no event row expected")
	}
	if env.scheduler.pending() != 0 {
		t.Error("no delivery should be scheduled")
	}
}

func TestEnqueueSkipsToggledOffEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enable(t, "salesforce", "http://receiver.test/hooks")
	if _, err := env.configs.Update(ctx, "salesforce", map[string]any{
		"events_enabled": map[string]any{"contact.created": false, "deal.created": true},
	}); err != nil {
		t.Fatalf("update toggles: %v", err)
	}

	id, err := env.queue.Enqueue(ctx, "salesforce", "contact.created", "contacts", "r1", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "" || len(env.events(t)) != 0 {
		t.Error("toggled-off event type must be dropped")
	}

	id, err = env.queue.Enqueue(ctx, "salesforce", "deal.created", "deals", "r2", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Error("toggled-on event type must be accepted")
	}
}

func TestEnqueueStoresEventAndSchedulesDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enable(t, "pipedrive", "http://receiver.test/hooks")

	id, err := env.queue.Enqueue(ctx, "pipedrive", "contact.created", "contacts", "r9",
		map[string]any{"email": "g@example.com"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected an event id")
	}

	events := env.events(t)
	if len(events) != 1 {
		t.Fatalf("expected 1 event row, got %d", len(events))
	}
	ev := events[0]
	if ev["id"] != id || ev["tenant"] != "pipedrive" || ev["event_type"] != "contact.created" {
		t.Errorf("event row = %v", ev)
	}
	if ev["resource_id"] != "r9" {
		t.Errorf("resource_id = %v", ev["resource_id"])
	}

	if env.scheduler.pending() != 1 {
		t.Errorf("expected 1 scheduled dispatch, got %d", env.scheduler.pending())
	}
}

func TestEnqueueUnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.queue.Enqueue(context.Background(),
		"zoho", "contact.created", "contacts", "r1", nil)
	if err != nil {
		t.Fatalf("missing config should not be an error: %v", err)
	}
	if id != "" {
		t.Errorf("missing config must drop the event, got %q", id)
	}
}

func TestFilterExpressionGatesEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enable(t, "pipedrive", "http://receiver.test/hooks")

	if _, err := env.configs.Update(ctx, "pipedrive", map[string]any{
		"filter": "data.value > 1000",
	}); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	id, err := env.queue.Enqueue(ctx, "pipedrive", "deal.created", "deals", "d1",
		map[string]any{"value": 2500.0})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Error("matching event must pass the filter")
	}

	id, err = env.queue.Enqueue(ctx, "pipedrive", "deal.created", "deals", "d2",
		map[string]any{"value": 500.0})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "" {
		t.Error("non-matching event must be dropped by the filter")
	}
	if len(env.events(t)) != 1 {
		t.Errorf("expected exactly 1 stored event, got %d", len(env.events(t)))
	}
}

func TestFilterEvaluatesEventMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enable(t, "pipedrive", "http://receiver.test/hooks")

	if _, err := env.configs.Update(ctx, "pipedrive", map[string]any{
		"filter": `event_type == "deal.created" && resource_kind == "deals"`,
	}); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	id, err := env.queue.Enqueue(ctx, "pipedrive", "deal.created", "deals", "d1", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Error("matching metadata must pass")
	}

	id, err = env.queue.Enqueue(ctx, "pipedrive", "contact.created", "contacts", "c1", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "" {
		t.Error("mismatched metadata must be dropped")
	}
}

func TestBrokenFilterFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enable(t, "pipedrive", "http://receiver.test/hooks")

	if _, err := env.configs.Update(ctx, "pipedrive", map[string]any{
		"filter": "this is ((( not an expression",
	}); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	id, err := env.queue.Enqueue(ctx, "pipedrive", "deal.created", "deals", "d1", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Error("a broken filter must not drop events")
	}
}
