package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/config"
	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/monitor"
	"mockcrm-backend/internal/store"
	"mockcrm-backend/internal/webhook"
)

type apiEnv struct {
	app       *fiber.App
	store     *store.Store
	configs   *webhook.ConfigStore
	simulator *engine.Simulator
	bus       *bus.Bus
}

// newAPIEnv wires the full request path: CRUD routes, change history,
// webhook queue with a real timer scheduler, and request logging.
func newAPIEnv(t *testing.T) *apiEnv {
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

	eventBus := bus.New()
	configs := webhook.NewConfigStore(s, reg)
	scheduler := webhook.NewScheduler()
	deliverer := webhook.NewDeliverer(s, configs, eventBus, config.WebhookConfig{
		MaxAttempts: 3,
		BaseDelayMs: 5, // keep retry chains fast
		TimeoutMs:   2000,
	}, scheduler)
	queue := webhook.NewQueue(s, configs, deliverer, scheduler)

	changes := engine.NewChangeRecorder(s, eventBus)
	resources := engine.NewResources(s, changes, queue)
	simulator := engine.NewSimulator(30*time.Second, 0.3)

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	api := app.Group("/api")
	webhook.RegisterRoutes(api, webhook.NewHandler(s, reg, configs, deliverer))
	engine.RegisterRoutes(api, engine.NewHandler(reg, resources), simulator,
		monitor.Middleware(s, eventBus))

	return &apiEnv{app: app, store: s, configs: configs, simulator: simulator, bus: eventBus}
}

func (env *apiEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func (env *apiEnv) enableWebhooks(t *testing.T, tenant, url string) {
	t.Helper()
	_, err := env.configs.Update(context.Background(), tenant, map[string]any{
		"enabled":     true,
		"webhook_url": url,
		"secret":      "e2e-secret",
	})
	if err != nil {
		t.Fatalf("enable webhooks: %v", err)
	}
}

func (env *apiEnv) deliveryRows(t *testing.T) []map[string]any {
	t.Helper()
	rows, err := store.QueryRows(context.Background(), env.store.DB,
		"SELECT * FROM webhook_deliveries ORDER BY attempt_number")
	if err != nil {
		t.Fatalf("query deliveries: %v", err)
	}
	return rows
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

const contactBody = `{"Email":"ada@example.com","FirstName":"Ada","LastName":"Lovelace"}`

func TestCreateFlowDeliversWebhook(t *testing.T) {
	env := newAPIEnv(t)

	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case received <- body:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	env.enableWebhooks(t, "salesforce", server.URL)

	status, record := env.do(t, "POST", "/api/salesforce/contacts", contactBody)
	if status != 201 {
		t.Fatalf("create status = %d (%v)", status, record)
	}
	if record["id"] == nil || record["created_at"] != record["updated_at"] {
		t.Errorf("created record = %v", record)
	}

	waitFor(t, 2*time.Second, func() bool {
		rows := env.deliveryRows(t)
		return len(rows) == 1 && rows[0]["status"] == "delivered"
	})

	select {
	case body := <-received:
		var payload struct {
			EventType string         `json:"event_type"`
			Data      map[string]any `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode webhook body: %v", err)
		}
		if payload.EventType != "contact.created" || payload.Data["id"] != record["id"] {
			t.Errorf("webhook payload = %+v", payload)
		}
	default:
		t.Fatal("receiver saw no request")
	}
}

func TestCreateWithDisabledWebhooksStoresNothing(t *testing.T) {
	env := newAPIEnv(t)

	status, _ := env.do(t, "POST", "/api/salesforce/contacts", contactBody)
	if status != 201 {
		t.Fatalf("create status = %d", status)
	}

	time.Sleep(100 * time.Millisecond)
	if rows := env.deliveryRows(t); len(rows) != 0 {
		t.Errorf("deliveries with disabled config: %d", len(rows))
	}
	events, err := store.QueryRows(context.Background(), env.store.DB, "SELECT * FROM webhook_events")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events with disabled config: %d", len(events))
	}
}

func TestUnreachableReceiverRetriesThreeTimes(t *testing.T) {
	env := newAPIEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()
	env.enableWebhooks(t, "salesforce", url)

	status, _ := env.do(t, "POST", "/api/salesforce/contacts", contactBody)
	if status != 201 {
		t.Fatalf("create status = %d", status)
	}

	waitFor(t, 3*time.Second, func() bool {
		return len(env.deliveryRows(t)) == 3
	})

	// No fourth attempt arrives later.
	time.Sleep(100 * time.Millisecond)
	rows := env.deliveryRows(t)
	if len(rows) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", len(rows))
	}
	for i, row := range rows {
		if row["status"] != "failed" || row["attempt_number"] != int64(i+1) {
			t.Errorf("row %d = %v", i, row)
		}
	}
}

func TestUnknownTenantRejected(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, "POST", "/api/zoho/contacts", contactBody)
	if status != 400 {
		t.Fatalf("status = %d", status)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "VALIDATION_FAILED" {
		t.Errorf("error envelope = %v", body)
	}
}

func TestGetMissingRecordEnvelope(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, "GET", "/api/salesforce/contacts/no-such-id", "")
	if status != 404 {
		t.Fatalf("status = %d", status)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "NOT_FOUND" {
		t.Errorf("error envelope = %v", body)
	}
}

func TestListPaginationOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"Email":"u%d@example.com","FirstName":"U","LastName":"%d"}`, i, i)
		if status, _ := env.do(t, "POST", "/api/salesforce/contacts", body); status != 201 {
			t.Fatalf("create %d failed: %d", i, status)
		}
	}

	status, body := env.do(t, "GET", "/api/salesforce/contacts?limit=2", "")
	if status != 200 {
		t.Fatalf("list status = %d", status)
	}
	data, _ := body["data"].([]any)
	pagination, _ := body["pagination"].(map[string]any)
	if len(data) != 2 {
		t.Errorf("page 1 len = %d", len(data))
	}
	if pagination["total"] != float64(3) || pagination["has_more"] != true {
		t.Errorf("pagination = %v", pagination)
	}

	status, body = env.do(t, "GET", "/api/salesforce/contacts?limit=2&offset=2", "")
	if status != 200 {
		t.Fatalf("list status = %d", status)
	}
	data, _ = body["data"].([]any)
	pagination, _ = body["pagination"].(map[string]any)
	if len(data) != 1 || pagination["has_more"] != false {
		t.Errorf("page 2 = %v / %v", data, pagination)
	}
}

func TestUpdateAndDeleteOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	_, record := env.do(t, "POST", "/api/salesforce/contacts", contactBody)
	id, _ := record["id"].(string)
	if id == "" {
		t.Fatal("create returned no id")
	}

	status, updated := env.do(t, "PUT", "/api/salesforce/contacts/"+id, `{"Title":"Engineer"}`)
	if status != 200 {
		t.Fatalf("update status = %d", status)
	}
	if updated["Title"] != "Engineer" || updated["Email"] != "ada@example.com" {
		t.Errorf("updated record = %v", updated)
	}

	req := httptest.NewRequest("DELETE", "/api/salesforce/contacts/"+id, nil)
	resp, err := env.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	status, _ = env.do(t, "GET", "/api/salesforce/contacts/"+id, "")
	if status != 404 {
		t.Errorf("get after delete = %d", status)
	}
}

func TestSimulatedRejectionIsLogged(t *testing.T) {
	env := newAPIEnv(t)

	var requests []bus.Event
	env.bus.Subscribe(func(e bus.Event) {
		if e.Type == bus.KindAPIRequest {
			requests = append(requests, e)
		}
	})
	env.simulator.EnableRateLimit()

	status, _ := env.do(t, "GET", "/api/salesforce/contacts", "")
	if status != 429 {
		t.Fatalf("status = %d, want 429", status)
	}

	rows, err := store.QueryRows(context.Background(), env.store.DB, "SELECT * FROM api_logs")
	if err != nil {
		t.Fatalf("query api_logs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 api_logs row for the rejected request, got %d", len(rows))
	}
	row := rows[0]
	if row["status_code"] != int64(429) {
		t.Errorf("logged status_code = %v, want 429", row["status_code"])
	}
	if row["tenant"] != "salesforce" || row["resource_kind"] != "contacts" {
		t.Errorf("logged partition = %v/%v", row["tenant"], row["resource_kind"])
	}
	if row["error_message"] == nil || row["error_message"] == "" {
		t.Error("rejected request should carry an error_message")
	}

	if len(requests) != 1 {
		t.Fatalf("expected 1 api_request event, got %d", len(requests))
	}
	data, ok := requests[0].Data.(map[string]any)
	if !ok || data["status_code"] != 429 {
		t.Errorf("published event data = %v", requests[0].Data)
	}
}

func TestValidationErrorOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, "POST", "/api/salesforce/contacts", `{"Email":"x@example.com"}`)
	if status != 400 {
		t.Fatalf("status = %d", status)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "VALIDATION_FAILED" {
		t.Fatalf("error envelope = %v", body)
	}
	details, _ := errObj["details"].([]any)
	if len(details) == 0 {
		t.Error("expected field-level details")
	}
}
