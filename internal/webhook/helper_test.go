package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/config"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// manualScheduler queues tasks instead of running them on timers, so tests
// control exactly when each delivery attempt happens.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

type scheduledTask struct {
	delay time.Duration
	fn    func()
}

func (m *manualScheduler) Schedule(delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, scheduledTask{delay: delay, fn: fn})
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// runNext pops and runs the oldest task, returning its delay.
func (m *manualScheduler) runNext(t *testing.T) time.Duration {
	t.Helper()
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		t.Fatal("no scheduled task to run")
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	m.mu.Unlock()

	task.fn()
	return task.delay
}

// drain runs tasks until none remain and returns the observed delays.
func (m *manualScheduler) drain(t *testing.T) []time.Duration {
	t.Helper()
	var delays []time.Duration
	for m.pending() > 0 {
		delays = append(delays, m.runNext(t))
	}
	return delays
}

type testEnv struct {
	store     *store.Store
	registry  *metadata.Registry
	configs   *ConfigStore
	deliverer *Deliverer
	queue     *Queue
	scheduler *manualScheduler
	bus       *bus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewMemory(ctx)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	reg.Load(metadata.Catalog())
	if err := s.Bootstrap(ctx, reg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := store.NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	scheduler := &manualScheduler{}
	eventBus := bus.New()
	configs := NewConfigStore(s, reg)
	deliverer := NewDeliverer(s, configs, eventBus, config.WebhookConfig{
		MaxAttempts: 3,
		BaseDelayMs: 1000,
		TimeoutMs:   5000,
	}, scheduler)
	queue := NewQueue(s, configs, deliverer, scheduler)

	return &testEnv{
		store:     s,
		registry:  reg,
		configs:   configs,
		deliverer: deliverer,
		queue:     queue,
		scheduler: scheduler,
		bus:       eventBus,
	}
}

// enable points a tenant's config at a receiver URL and turns it on.
func (env *testEnv) enable(t *testing.T, tenant, url string) *TenantConfig {
	t.Helper()
	cfg, err := env.configs.Update(context.Background(), tenant, map[string]any{
		"enabled":     true,
		"webhook_url": url,
		"secret":      "s3cret-" + tenant,
	})
	if err != nil {
		t.Fatalf("enable config for %s: %v", tenant, err)
	}
	return cfg
}

func (env *testEnv) deliveries(t *testing.T) []map[string]any {
	t.Helper()
	rows, err := store.QueryRows(context.Background(), env.store.DB,
		"SELECT * FROM webhook_deliveries ORDER BY attempt_number")
	if err != nil {
		t.Fatalf("query deliveries: %v", err)
	}
	return rows
}

func (env *testEnv) events(t *testing.T) []map[string]any {
	t.Helper()
	rows, err := store.QueryRows(context.Background(), env.store.DB,
		"SELECT * FROM webhook_events ORDER BY created_at")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	return rows
}
