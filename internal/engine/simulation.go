package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Simulator holds the time-boxed error-simulation switches. It is passed
// explicitly to the routers that consult it; there is no package-level state.
// Windows expire naturally: each switch stores a deadline and is considered
// off once the clock passes it. Re-enabling pushes the deadline out again.
type Simulator struct {
	mu             sync.Mutex
	window         time.Duration
	errorRate      float64
	rateLimitUntil time.Time
	errorsUntil    time.Time

	now       func() time.Time
	randFloat func() float64
}

func NewSimulator(window time.Duration, errorRate float64) *Simulator {
	return &Simulator{
		window:    window,
		errorRate: errorRate,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Window returns the configured simulation window.
func (s *Simulator) Window() time.Duration {
	return s.window
}

// EnableRateLimit turns the rate-limit switch on for the configured window.
func (s *Simulator) EnableRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitUntil = s.now().Add(s.window)
}

// EnableErrors turns the random-error switch on for the configured window.
func (s *Simulator) EnableErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorsUntil = s.now().Add(s.window)
}

// RateLimitActive reports whether the rate-limit window is still open.
func (s *Simulator) RateLimitActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.rateLimitUntil)
}

// ErrorsActive reports whether the random-error window is still open.
func (s *Simulator) ErrorsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.errorsUntil)
}

// shouldFail rolls the dice for one request inside an open error window.
func (s *Simulator) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.now().Before(s.errorsUntil) {
		return false
	}
	return s.randFloat() < s.errorRate
}

// Middleware rejects requests while a simulation window is open: every
// request while rate limiting is on, a random fraction while errors are on.
func (s *Simulator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.RateLimitActive() {
			return RateLimitError()
		}
		if s.shouldFail() {
			return SimulatedServerError()
		}
		return c.Next()
	}
}
