package engine

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/metadata"
)

// Handler exposes the resource CRUD operations over HTTP.
type Handler struct {
	registry  *metadata.Registry
	resources *Resources
}

func NewHandler(reg *metadata.Registry, resources *Resources) *Handler {
	return &Handler{registry: reg, resources: resources}
}

// ErrorHandler is the app-level fiber error handler. AppErrors map to their
// status and envelope; anything else becomes a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: NewAppError("INTERNAL_ERROR", fiberErr.Code, fiberErr.Message),
		})
	}

	log.Printf("ERROR: unhandled: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: NewAppError("INTERNAL_ERROR", fiber.StatusInternalServerError, "Internal server error"),
	})
}

func (h *Handler) resolveSchema(c *fiber.Ctx) (*metadata.Schema, error) {
	tenant := c.Params("tenant")
	kind := c.Params("resource")
	schema := h.registry.Get(tenant, kind)
	if schema == nil {
		return nil, UnknownPartitionError(tenant, kind)
	}
	return schema, nil
}

func (h *Handler) list(c *fiber.Ctx) error {
	schema, err := h.resolveSchema(c)
	if err != nil {
		return err
	}
	params, err := ParseListParams(schema, c.Queries())
	if err != nil {
		return err
	}

	rows, total, err := h.resources.List(c.Context(), schema, params)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"total":    total,
			"limit":    params.Limit,
			"offset":   params.Offset,
			"has_more": int64(params.Offset+params.Limit) < total,
		},
	})
}

func (h *Handler) get(c *fiber.Ctx) error {
	schema, err := h.resolveSchema(c)
	if err != nil {
		return err
	}
	row, err := h.resources.Get(c.Context(), schema, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (h *Handler) create(c *fiber.Ctx) error {
	schema, err := h.resolveSchema(c)
	if err != nil {
		return err
	}
	payload := make(map[string]any)
	if err := c.BodyParser(&payload); err != nil {
		return NewAppError("VALIDATION_FAILED", fiber.StatusBadRequest, "Invalid JSON body")
	}

	record, err := h.resources.Create(c.Context(), schema, payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *Handler) update(c *fiber.Ctx) error {
	schema, err := h.resolveSchema(c)
	if err != nil {
		return err
	}
	payload := make(map[string]any)
	if err := c.BodyParser(&payload); err != nil {
		return NewAppError("VALIDATION_FAILED", fiber.StatusBadRequest, "Invalid JSON body")
	}

	record, err := h.resources.Update(c.Context(), schema, c.Params("id"), payload)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Handler) remove(c *fiber.Ctx) error {
	schema, err := h.resolveSchema(c)
	if err != nil {
		return err
	}
	if err := h.resources.Delete(c.Context(), schema, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
