package webhook

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the webhook management routes.
func RegisterRoutes(router fiber.Router, h *Handler) {
	group := router.Group("/webhooks")

	group.Get("/config", h.getAllConfigs)
	group.Get("/config/:tenant", h.getConfig)
	group.Put("/config/:tenant", h.updateConfig)
	group.Post("/trigger", h.trigger)
	group.Post("/resend/:delivery_id", h.resend)
	group.Get("/history", h.history)
	group.Delete("/history", h.clearHistory)
}
