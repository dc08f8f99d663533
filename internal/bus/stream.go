package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// streamBuffer bounds how many events a slow observer may fall behind before
// events are dropped. Delivery to observers is best-effort.
const streamBuffer = 64

// keepAliveInterval is how often an idle stream writes a comment frame. The
// probe makes a dead connection fail a write promptly instead of leaving the
// subscription parked until the next real event.
const keepAliveInterval = 15 * time.Second

// RegisterStreamRoutes exposes the bus over Server-Sent Events.
func RegisterStreamRoutes(app *fiber.App, b *Bus) {
	app.Get("/events/stream", StreamHandler(b))
}

// StreamHandler returns a fiber handler that forwards bus events to the
// client as SSE frames until the client disconnects.
func StreamHandler(b *Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		events := make(chan Event, streamBuffer)
		id := b.Subscribe(func(e Event) {
			select {
			case events <- e:
			default:
				// observer is behind; drop
			}
		})

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer b.Unsubscribe(id)
			streamEvents(w, events, keepAliveInterval)
		}))

		return nil
	}
}

// streamEvents writes SSE frames until a write to the connection fails.
func streamEvents(w *bufio.Writer, events <-chan Event, keepAlive time.Duration) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("ERROR: marshal stream event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
