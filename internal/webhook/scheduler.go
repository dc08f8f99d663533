package webhook

import "time"

// Scheduler runs a function after a delay. The production implementation
// uses timers; tests substitute a manual one to make retry timing exact.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
}

type timerScheduler struct{}

// NewScheduler returns the timer-backed Scheduler.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}
