package session

import (
	"sync"
	"time"
)

// Countdown drives the maximum recording duration at one-second resolution.
// Its state is owned by the session state machine; callbacks fire on the
// countdown's own goroutine and must synchronize in the observer.
type Countdown struct {
	interval   time.Duration
	mu         sync.Mutex
	generation int
}

func NewCountdown() *Countdown {
	return &Countdown{interval: time.Second}
}

// newCountdownWithInterval shortens ticks for tests.
func newCountdownWithInterval(interval time.Duration) *Countdown {
	return &Countdown{interval: interval}
}

// Start begins a countdown of the given number of seconds. onTick receives
// the remaining seconds after each tick; onExpired fires exactly once when
// the countdown reaches zero. Starting while already running restarts from
// the new duration.
func (c *Countdown) Start(seconds int, onTick func(remaining int), onExpired func()) {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	go c.run(generation, seconds, onTick, onExpired)
}

func (c *Countdown) run(generation, seconds int, onTick func(int), onExpired func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	remaining := seconds
	for range ticker.C {
		c.mu.Lock()
		current := c.generation == generation
		c.mu.Unlock()
		if !current {
			return
		}
		remaining--
		if onTick != nil {
			onTick(remaining)
		}
		if remaining <= 0 {
			if onExpired != nil {
				onExpired()
			}
			return
		}
	}
}

// Cancel stops ticking and suppresses further events. Safe to call multiple
// times and when no countdown is running.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}
