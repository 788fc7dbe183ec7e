package collection

import (
	"fmt"
	"time"
)

// =============================================================================
// CLOCK - Trigger source for "day N of month M/year Y"
// =============================================================================

// Clock supplies the current time. The scheduler and the gate read it,
// tests replace it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Set moves it.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time  { return c.T }
func (c *FixedClock) Set(t time.Time) { c.T = t }

// Tick is one invocation of the collection day.
type Tick struct {
	Day    int
	Period Period
}

// TickAt converts a wall time into a collection tick.
func TickAt(t time.Time) Tick {
	return Tick{Day: t.Day(), Period: PeriodOf(t)}
}

// Validate checks the day exists in the tick's period.
func (t Tick) Validate() error {
	if err := t.Period.Validate(); err != nil {
		return err
	}
	if n := t.Period.DaysIn(); t.Day < 1 || t.Day > n {
		return fmt.Errorf("%w: day %d out of range 1-%d for %s", ErrInvalidArgument, t.Day, n, t.Period)
	}
	return nil
}

func orSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
