package webhook

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

// Handler exposes webhook configuration, manual triggering and delivery
// history over HTTP.
type Handler struct {
	store     *store.Store
	registry  *metadata.Registry
	configs   *ConfigStore
	deliverer *Deliverer
}

func NewHandler(s *store.Store, reg *metadata.Registry, configs *ConfigStore, deliverer *Deliverer) *Handler {
	return &Handler{store: s, registry: reg, configs: configs, deliverer: deliverer}
}

func (h *Handler) getAllConfigs(c *fiber.Ctx) error {
	configs, err := h.configs.GetAll(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": configs})
}

func (h *Handler) getConfig(c *fiber.Ctx) error {
	tenant := c.Params("tenant")
	cfg, err := h.configs.Get(c.Context(), tenant)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound,
			fmt.Sprintf("webhook config for %s not found", tenant))
	}
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (h *Handler) updateConfig(c *fiber.Ctx) error {
	tenant := c.Params("tenant")
	patch := make(map[string]any)
	if err := c.BodyParser(&patch); err != nil {
		return engine.NewAppError("VALIDATION_FAILED", fiber.StatusBadRequest, "Invalid JSON body")
	}

	cfg, err := h.configs.Update(c.Context(), tenant, patch)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound,
			fmt.Sprintf("webhook config for %s not found", tenant))
	}
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

type triggerRequest struct {
	Tenant         string         `json:"tenant"`
	EventType      string         `json:"event_type"`
	DestinationURL string         `json:"destination_url"`
	ResourceKind   string         `json:"resource_kind"`
	ResourceID     string         `json:"resource_id"`
	CustomPayload  map[string]any `json:"custom_payload"`
}

func (h *Handler) trigger(c *fiber.Ctx) error {
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.NewAppError("VALIDATION_FAILED", fiber.StatusBadRequest, "Invalid JSON body")
	}

	var details []engine.ErrorDetail
	if req.Tenant == "" {
		details = append(details, engine.ErrorDetail{Field: "tenant", Rule: "required", Message: "tenant is required"})
	} else if !h.registry.HasTenant(req.Tenant) {
		details = append(details, engine.ErrorDetail{Field: "tenant", Rule: "unknown", Message: fmt.Sprintf("unknown tenant: %s", req.Tenant)})
	}
	if req.EventType == "" {
		details = append(details, engine.ErrorDetail{Field: "event_type", Rule: "required", Message: "event_type is required"})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}

	data, err := h.resolveTriggerData(c, &req)
	if err != nil {
		return err
	}

	delivery, err := h.deliverer.TriggerManual(c.Context(), req.Tenant, req.EventType, req.DestinationURL, data)
	if errors.Is(err, ErrNoDestination) {
		return engine.ValidationError([]engine.ErrorDetail{{
			Field: "destination_url", Rule: "required",
			Message: "no destination_url given and no webhook URL configured",
		}})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"delivery": delivery})
}

// resolveTriggerData picks the test payload: an explicit custom payload wins,
// then a stored record looked up by kind and id, then a canned payload.
func (h *Handler) resolveTriggerData(c *fiber.Ctx, req *triggerRequest) (map[string]any, error) {
	if req.CustomPayload != nil {
		return req.CustomPayload, nil
	}
	if req.ResourceID != "" && req.ResourceKind != "" {
		schema := h.registry.Get(req.Tenant, req.ResourceKind)
		if schema == nil {
			return nil, engine.UnknownPartitionError(req.Tenant, req.ResourceKind)
		}
		pb := h.store.Dialect.NewParamBuilder()
		row, err := store.QueryRow(c.Context(), h.store.DB,
			fmt.Sprintf("SELECT * FROM %s WHERE id = %s", schema.Table(), pb.Add(req.ResourceID)),
			pb.Params()...)
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.NotFoundError(req.ResourceKind, req.ResourceID)
		}
		if err != nil {
			return nil, err
		}
		return row, nil
	}
	return map[string]any{
		"test":         true,
		"message":      "Manually triggered webhook",
		"triggered_at": store.NowString(),
	}, nil
}

func (h *Handler) resend(c *fiber.Ctx) error {
	deliveryID := c.Params("delivery_id")
	delivery, err := h.deliverer.Resend(c.Context(), deliveryID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError("delivery", deliveryID)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"delivery": delivery})
}

func (h *Handler) history(c *fiber.Ctx) error {
	filter := HistoryFilter{
		Tenant:    c.Query("tenant"),
		EventType: c.Query("event_type"),
		Status:    c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return engine.ValidationError([]engine.ErrorDetail{{
				Field: "limit", Rule: "range", Message: "limit must be a positive integer",
			}})
		}
		filter.Limit = n
	}

	rows, err := h.deliverer.History(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) clearHistory(c *fiber.Ctx) error {
	n, err := h.deliverer.ClearHistory(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}
