package scenario

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/engine"
)

type Handler struct {
	runner  *Runner
	latency *LatencyTests
}

func NewHandler(runner *Runner, latency *LatencyTests) *Handler {
	return &Handler{runner: runner, latency: latency}
}

// RegisterRoutes mounts the testing endpoints.
func RegisterRoutes(router fiber.Router, h *Handler) {
	group := router.Group("/testing")

	group.Get("/scenarios", h.listScenarios)
	group.Post("/scenarios/:name", h.runScenario)
	group.Post("/latency-tests", h.startLatencyTest)
	group.Get("/latency-tests", h.listLatencyTests)
	group.Put("/latency-tests/:id/verify", h.verifyLatencyTest)
}

func (h *Handler) listScenarios(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": Names()})
}

func (h *Handler) runScenario(c *fiber.Ctx) error {
	result, err := h.runner.Run(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

type latencyTestRequest struct {
	Tenant       string `json:"tenant"`
	ResourceKind string `json:"resource_kind"`
}

func (h *Handler) startLatencyTest(c *fiber.Ctx) error {
	var req latencyTestRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.NewAppError("VALIDATION_FAILED", fiber.StatusBadRequest, "Invalid JSON body")
	}
	if req.Tenant == "" || req.ResourceKind == "" {
		return engine.ValidationError([]engine.ErrorDetail{{
			Field: "tenant", Rule: "required",
			Message: "tenant and resource_kind are required",
		}})
	}

	test, err := h.latency.Start(c.Context(), req.Tenant, req.ResourceKind)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(test)
}

func (h *Handler) listLatencyTests(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return engine.ValidationError([]engine.ErrorDetail{{
				Field: "limit", Rule: "range", Message: "limit must be a positive integer",
			}})
		}
		limit = n
	}

	tests, err := h.latency.List(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tests})
}

func (h *Handler) verifyLatencyTest(c *fiber.Ctx) error {
	test, err := h.latency.Verify(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(test)
}
