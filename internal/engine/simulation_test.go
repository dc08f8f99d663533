package engine

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestSimulatorWindowExpiry(t *testing.T) {
	sim := NewSimulator(30*time.Second, 1.0)
	current := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return current }

	if sim.RateLimitActive() || sim.ErrorsActive() {
		t.Fatal("both switches must start off")
	}

	sim.EnableRateLimit()
	sim.EnableErrors()
	if !sim.RateLimitActive() || !sim.ErrorsActive() {
		t.Fatal("both switches should be on inside the window")
	}

	current = current.Add(29 * time.Second)
	if !sim.RateLimitActive() {
		t.Error("window should still be open at 29s")
	}

	current = current.Add(2 * time.Second)
	if sim.RateLimitActive() || sim.ErrorsActive() {
		t.Error("window should be closed after 31s")
	}

	// Re-enabling pushes the deadline out again.
	sim.EnableRateLimit()
	if !sim.RateLimitActive() {
		t.Error("re-enable should reopen the window")
	}
}

func TestSimulatorErrorRate(t *testing.T) {
	sim := NewSimulator(30*time.Second, 0.3)
	current := time.Now()
	sim.now = func() time.Time { return current }

	roll := 0.0
	sim.randFloat = func() float64 { return roll }

	if sim.shouldFail() {
		t.Error("closed window must never fail")
	}

	sim.EnableErrors()
	roll = 0.1
	if !sim.shouldFail() {
		t.Error("roll below rate should fail the request")
	}
	roll = 0.9
	if sim.shouldFail() {
		t.Error("roll above rate should pass the request")
	}
}

func TestSimulatorMiddleware(t *testing.T) {
	sim := NewSimulator(30*time.Second, 1.0)
	sim.randFloat = func() float64 { return 0.0 }

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(sim.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("baseline status = %d", resp.StatusCode)
	}

	sim.EnableRateLimit()
	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 429 {
		t.Fatalf("rate limited status = %d, want 429", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil || body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error body = %+v", body.Error)
	}

	// Close the rate-limit window, open the error window at rate 1.0.
	sim.rateLimitUntil = time.Time{}
	sim.EnableErrors()
	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("error window status = %d, want 500", resp.StatusCode)
	}
}
