package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/config"
	"mockcrm-backend/internal/store"
)

// ManualEventID is the sentinel event id recorded for deliveries that were
// triggered by hand rather than by a stored event.
const ManualEventID = "manual-trigger"

// fallbackSecret signs manual triggers for tenants without a config row.
const fallbackSecret = "default-secret"

// ErrNoDestination reports a manual delivery with no resolvable URL, neither
// in the request nor in the tenant config.
var ErrNoDestination = errors.New("no destination URL configured")

const maxResponseBody = 64 * 1024

// eventData is the in-flight representation of one event being delivered.
// Retries reuse it so the payload stays identical across attempts.
type eventData struct {
	ID        string
	Tenant    string
	EventType string
	Data      map[string]any
}

// Deliverer signs and POSTs webhook payloads, records one delivery row per
// attempt and schedules retries with exponential backoff.
type Deliverer struct {
	store     *store.Store
	configs   *ConfigStore
	bus       *bus.Bus
	client    *http.Client
	scheduler Scheduler

	maxAttempts int
	baseDelay   time.Duration

	now func() time.Time
}

func NewDeliverer(s *store.Store, configs *ConfigStore, b *bus.Bus, cfg config.WebhookConfig, scheduler Scheduler) *Deliverer {
	return &Deliverer{
		store:       s,
		configs:     configs,
		bus:         b,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		scheduler:   scheduler,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		now:         time.Now,
	}
}

// Deliver loads a stored event and runs its delivery chain from attempt 1.
func (d *Deliverer) Deliver(ctx context.Context, eventID string) {
	ev, err := d.loadEvent(ctx, eventID)
	if err != nil {
		log.Printf("ERROR: load webhook event %s: %v", eventID, err)
		return
	}
	d.deliverEvent(ctx, ev, 1)
}

func (d *Deliverer) loadEvent(ctx context.Context, eventID string) (*eventData, error) {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		fmt.Sprintf("SELECT * FROM webhook_events WHERE id = %s", pb.Add(eventID)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}

	ev := &eventData{ID: eventID}
	ev.Tenant, _ = row["tenant"].(string)
	ev.EventType, _ = row["event_type"].(string)
	if raw, ok := row["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &ev.Data); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
	}
	return ev, nil
}

// deliverEvent performs one attempt and, on failure, schedules the next one
// at baseDelay * 2^(attempt-1) until maxAttempts is reached. A missing or
// URL-less config aborts the chain silently: no delivery row is written.
func (d *Deliverer) deliverEvent(ctx context.Context, ev *eventData, attempt int) {
	cfg, err := d.configs.Get(ctx, ev.Tenant)
	if errors.Is(err, store.ErrNotFound) || (err == nil && cfg.WebhookURL == "") {
		log.Printf("No webhook URL for %s, dropping event %s", ev.Tenant, ev.ID)
		return
	}
	if err != nil {
		log.Printf("ERROR: load config for %s: %v", ev.Tenant, err)
		return
	}

	delivered, err := d.attempt(ctx, ev, attempt, cfg.WebhookURL, cfg.Secret)
	if err != nil {
		log.Printf("ERROR: webhook delivery %s attempt %d: %v", ev.ID, attempt, err)
		return
	}
	if delivered || attempt >= d.maxAttempts {
		return
	}

	delay := d.baseDelay << (attempt - 1)
	next := attempt + 1
	d.scheduler.Schedule(delay, func() {
		d.deliverEvent(context.Background(), ev, next)
	})
}

// attempt sends the payload once and records the outcome. The returned bool
// reports whether the receiver accepted it.
func (d *Deliverer) attempt(ctx context.Context, ev *eventData, attempt int, url, secret string) (bool, error) {
	body, err := json.Marshal(map[string]any{
		"event_type": ev.EventType,
		"tenant":     ev.Tenant,
		"timestamp":  store.FormatTime(d.now()),
		"data":       ev.Data,
	})
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{
		"Content-Type":        "application/json",
		"X-Webhook-Signature": Sign(secret, body),
		"X-Webhook-Timestamp": strconv.FormatInt(d.now().UnixMilli(), 10),
		"X-Webhook-Event":     ev.EventType,
		"X-Webhook-Tenant":    ev.Tenant,
	}

	status, responseBody, sendErr := d.send(ctx, url, body, headers)
	delivered := sendErr == nil && status >= 200 && status < 300

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	} else if !delivered {
		errMsg = fmt.Sprintf("receiver returned status %d", status)
	}
	if err := d.record(ctx, ev, attempt, url, headers, body, status, responseBody, errMsg); err != nil {
		return delivered, err
	}
	return delivered, nil
}

func (d *Deliverer) send(ctx context.Context, url string, body []byte, headers map[string]string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Transport failure: no HTTP status to report.
		return 0, "", err
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, string(responseBody), nil
}

func (d *Deliverer) record(ctx context.Context, ev *eventData, attempt int, url string,
	headers map[string]string, body []byte, status int, responseBody, errMsg string) error {

	delivered := errMsg == "" && status >= 200 && status < 300
	outcome := "failed"
	var deliveredAt any
	if delivered {
		outcome = "delivered"
		deliveredAt = store.FormatTime(d.now())
	}

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	pb := d.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, d.store.DB,
		fmt.Sprintf(`INSERT INTO webhook_deliveries
		 (id, event_id, tenant, event_type, destination_url, status, request_headers, request_body,
		  response_status, response_body, error_message, attempt_number, created_at, delivered_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(store.GenerateUUID()), pb.Add(ev.ID), pb.Add(ev.Tenant), pb.Add(ev.EventType),
			pb.Add(url), pb.Add(outcome), pb.Add(string(headersJSON)), pb.Add(string(body)),
			pb.Add(status), pb.Add(responseBody), pb.Add(nullIfEmpty(errMsg)),
			pb.Add(attempt), pb.Add(store.FormatTime(d.now())), pb.Add(deliveredAt)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}

	if d.bus != nil {
		d.bus.Publish(bus.KindWebhookSent, map[string]any{
			"event_id":        ev.ID,
			"tenant":          ev.Tenant,
			"event_type":      ev.EventType,
			"status":          outcome,
			"attempt":         attempt,
			"response_status": status,
		})
	}
	return nil
}

// TriggerManual sends one unqueued delivery with the sentinel event id.
// An explicit destination URL overrides the tenant config; tenants without a
// config row still get a signed request via the fallback secret, so
// receiver-side verification can be exercised before configuring.
func (d *Deliverer) TriggerManual(ctx context.Context, tenant, eventType, destinationURL string, data map[string]any) (map[string]any, error) {
	url, secret, err := d.resolveDestination(ctx, tenant, destinationURL)
	if err != nil {
		return nil, err
	}
	ev := &eventData{ID: ManualEventID, Tenant: tenant, EventType: eventType, Data: data}
	if _, err := d.attempt(ctx, ev, 1, url, secret); err != nil {
		return nil, err
	}
	return d.latestDelivery(ctx, ManualEventID, tenant)
}

func (d *Deliverer) resolveDestination(ctx context.Context, tenant, destinationURL string) (string, string, error) {
	url, secret := destinationURL, fallbackSecret
	cfg, err := d.configs.Get(ctx, tenant)
	if err == nil {
		secret = cfg.Secret
		if url == "" {
			url = cfg.WebhookURL
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", "", fmt.Errorf("load config: %w", err)
	}
	if url == "" {
		return "", "", ErrNoDestination
	}
	return url, secret, nil
}

// Resend replays a past delivery's data as a fresh single attempt against the
// same destination URL.
func (d *Deliverer) Resend(ctx context.Context, deliveryID string) (map[string]any, error) {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		fmt.Sprintf("SELECT * FROM webhook_deliveries WHERE id = %s", pb.Add(deliveryID)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}

	ev := &eventData{}
	ev.ID, _ = row["event_id"].(string)
	ev.Tenant, _ = row["tenant"].(string)
	ev.EventType, _ = row["event_type"].(string)
	if raw, ok := row["request_body"].(string); ok && raw != "" {
		var payload struct {
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		ev.Data = payload.Data
	}

	destination, _ := row["destination_url"].(string)
	url, secret, err := d.resolveDestination(ctx, ev.Tenant, destination)
	if err != nil {
		return nil, err
	}
	if _, err := d.attempt(ctx, ev, 1, url, secret); err != nil {
		return nil, err
	}
	return d.latestDelivery(ctx, ev.ID, ev.Tenant)
}

func (d *Deliverer) latestDelivery(ctx context.Context, eventID, tenant string) (map[string]any, error) {
	pb := d.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, d.store.DB,
		fmt.Sprintf(`SELECT * FROM webhook_deliveries WHERE event_id = %s AND tenant = %s
		 ORDER BY created_at DESC LIMIT 1`, pb.Add(eventID), pb.Add(tenant)),
		pb.Params()...)
}

// HistoryFilter narrows the delivery history listing. Zero values match all.
type HistoryFilter struct {
	Tenant    string
	EventType string
	Status    string
	Limit     int
}

// History returns delivery attempts, newest first.
func (d *Deliverer) History(ctx context.Context, filter HistoryFilter) ([]map[string]any, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	pb := d.store.Dialect.NewParamBuilder()
	var clauses []string
	if filter.Tenant != "" {
		clauses = append(clauses, "tenant = "+pb.Add(filter.Tenant))
	}
	if filter.EventType != "" {
		clauses = append(clauses, "event_type = "+pb.Add(filter.EventType))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+pb.Add(filter.Status))
	}

	query := "SELECT * FROM webhook_deliveries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + pb.Add(limit)

	rows, err := store.QueryRows(ctx, d.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("delivery history: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// ClearHistory removes all delivery attempts and stored events.
func (d *Deliverer) ClearHistory(ctx context.Context) (int64, error) {
	n, err := store.Exec(ctx, d.store.DB, "DELETE FROM webhook_deliveries")
	if err != nil {
		return 0, fmt.Errorf("clear deliveries: %w", err)
	}
	if _, err := store.Exec(ctx, d.store.DB, "DELETE FROM webhook_events"); err != nil {
		return n, fmt.Errorf("clear events: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
