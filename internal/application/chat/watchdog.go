package chat

import (
	"time"

	"github.com/benbjohnson/clock"
)

// watchdog declares a send attempt failed when no answer arrives before its
// deadline. The deadline runs from arm time, so every attempt carries its own.
//
// A watchdog is armed once and disarmed from exactly one place, Engine.settleLocked,
// whatever resolved the attempt (direct reply, push reply, failure, teardown).
// Callers hold the engine lock.
type watchdog struct {
	clock    clock.Clock
	deadline time.Duration
	timer    *clock.Timer
	armedAt  time.Time
}

func newWatchdog(clk clock.Clock, deadline time.Duration) *watchdog {
	return &watchdog{clock: clk, deadline: deadline}
}

func (w *watchdog) arm(onExpire func()) {
	w.armedAt = w.clock.Now()
	w.timer = w.clock.AfterFunc(w.deadline, onExpire)
}

// disarm stops the timer and reports whether it was still pending.
func (w *watchdog) disarm() bool {
	if w.timer == nil {
		return false
	}
	stopped := w.timer.Stop()
	w.timer = nil
	return stopped
}

func (w *watchdog) armed() bool {
	return w.timer != nil
}
