package monitor

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"mockcrm-backend/internal/bus"
	"mockcrm-backend/internal/engine"
	"mockcrm-backend/internal/store"
)

const maxCapturedBody = 4 * 1024

// Middleware records one api_logs row per resource request and publishes an
// api_request event. It must be mounted where the tenant and resource params
// are available.
func Middleware(s *store.Store, b *bus.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestBody := capture(c.Body())
		requestQuery := string(c.Request().URI().QueryString())
		headersJSON := headerJSON(c)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		errMsg := ""
		var responseBody string
		if err != nil {
			var appErr *engine.AppError
			if errors.As(err, &appErr) {
				statusCode = appErr.Status
			} else {
				statusCode = fiber.StatusInternalServerError
			}
			errMsg = err.Error()
		} else {
			responseBody = capture(c.Response().Body())
		}

		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		entry := map[string]any{
			"tenant":           c.Params("tenant"),
			"method":           c.Method(),
			"endpoint":         c.Path(),
			"resource_kind":    c.Params("resource"),
			"status_code":      statusCode,
			"response_time_ms": elapsed,
		}

		pb := s.Dialect.NewParamBuilder()
		insertSQL := "INSERT INTO api_logs (id, tenant, method, endpoint, resource_kind, status_code, response_time_ms, request_headers, request_body, request_query, response_body, error_message, timestamp) VALUES (" +
			pb.Add(store.GenerateUUID()) + ", " + pb.Add(c.Params("tenant")) + ", " + pb.Add(c.Method()) + ", " +
			pb.Add(c.Path()) + ", " + pb.Add(c.Params("resource")) + ", " + pb.Add(statusCode) + ", " +
			pb.Add(elapsed) + ", " + pb.Add(headersJSON) + ", " + pb.Add(nullable(requestBody)) + ", " +
			pb.Add(nullable(requestQuery)) + ", " + pb.Add(nullable(responseBody)) + ", " +
			pb.Add(nullable(errMsg)) + ", " + pb.Add(store.NowString()) + ")"
		if _, dbErr := store.Exec(c.Context(), s.DB, insertSQL, pb.Params()...); dbErr != nil {
			log.Printf("ERROR: write api log: %v", dbErr)
		}

		if b != nil {
			b.Publish(bus.KindAPIRequest, entry)
		}
		return err
	}
}

func capture(body []byte) string {
	if len(body) > maxCapturedBody {
		body = body[:maxCapturedBody]
	}
	return string(body)
}

func headerJSON(c *fiber.Ctx) string {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	encoded, err := json.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
