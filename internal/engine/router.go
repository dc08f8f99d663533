package engine

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the resource CRUD routes under the given router
// (typically the /api group). Extra middleware (request logging) runs before
// the simulator so simulated 429/500 rejections are still logged.
func RegisterRoutes(router fiber.Router, h *Handler, sim *Simulator, middleware ...fiber.Handler) {
	group := router.Group("/:tenant/:resource")
	for _, m := range middleware {
		group.Use(m)
	}
	if sim != nil {
		group.Use(sim.Middleware())
	}

	group.Get("/", h.list)
	group.Post("/", h.create)
	group.Get("/:id", h.get)
	group.Put("/:id", h.update)
	group.Delete("/:id", h.remove)
}
