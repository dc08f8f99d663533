package monitor

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the monitoring endpoints.
func RegisterRoutes(router fiber.Router, h *Handler) {
	group := router.Group("/monitoring")

	group.Get("/metrics", h.metrics)
	group.Get("/logs", h.logs)
	group.Get("/timeline", h.timeline)
	group.Get("/changes", h.recentChanges)
	group.Get("/data/:tenant/:resource", h.dataDump)
	group.Post("/reset", h.reset)
	group.Delete("/logs", h.clearLogs)
	group.Delete("/timeline", h.clearChanges)
}
