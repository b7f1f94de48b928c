package timetable

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer arms one-shot callbacks at absolute instants.
//
// Implementations must invoke fn at most once per handle, on a goroutine of
// their choosing, and must tolerate Cancel after the callback has fired.
type Timer interface {
	ArmOnce(at time.Time, fn func()) (TimerHandle, error)
}

// TimerHandle cancels an armed callback. Cancel is idempotent.
type TimerHandle interface {
	Cancel()
}

// ClockTimer implements Timer on a clockwork clock. It is used in tests with
// a fake clock and by the "clock" scheduler backend with the real one.
type ClockTimer struct {
	clock clockwork.Clock
}

// NewClockTimer creates a Timer driven by clock. A nil clock means the real
// wall clock.
func NewClockTimer(clock clockwork.Clock) *ClockTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockTimer{clock: clock}
}

// ArmOnce schedules fn for at. Instants in the past fire immediately.
func (c *ClockTimer) ArmOnce(at time.Time, fn func()) (TimerHandle, error) {
	d := at.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	return clockHandle{timer: c.clock.AfterFunc(d, fn)}, nil
}

type clockHandle struct {
	timer clockwork.Timer
}

func (h clockHandle) Cancel() {
	h.timer.Stop()
}
