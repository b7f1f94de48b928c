package timetable

import (
	"fmt"
	"slices"
	"time"
)

// Table is a sorted list of transition events for one day cycle.
//
// Events are kept strictly ascending by time with no two events sharing a
// time. The midnight boundary is implicit: from 00:00:00 until the first
// event the state is that of the last event, so the day wraps around.
//
// Table holds no lock; Timetable serialises access to it.
type Table struct {
	events []Event
}

// NewTable builds a table from events in any order.
// Returns ErrDuplicateTime if two events share a time.
func NewTable(events []Event) (*Table, error) {
	t := &Table{}
	if err := t.Reconfig(events); err != nil {
		return nil, err
	}
	return t, nil
}

// Len returns the number of stored events.
func (t *Table) Len() int {
	return len(t.events)
}

// Events returns a copy of the stored events in ascending order.
func (t *Table) Events() []Event {
	return slices.Clone(t.events)
}

// search returns the index of the event at tod, or the insertion index.
func (t *Table) search(tod TimeOfDay) (int, bool) {
	return slices.BinarySearchFunc(t.events, tod, func(e Event, target TimeOfDay) int {
		return int(e.Time) - int(target)
	})
}

// Set inserts an event, or overwrites the state of the event already at
// that time.
func (t *Table) Set(tod TimeOfDay, state State) error {
	if !tod.Valid() {
		return fmt.Errorf("%w: %d seconds", ErrMalformedTime, int32(tod))
	}
	i, found := t.search(tod)
	if found {
		t.events[i].State = state
		return nil
	}
	t.events = slices.Insert(t.events, i, Event{Time: tod, State: state})
	return nil
}

// Unset removes the event at exactly tod.
// Returns ErrTimeNotFound, leaving the table untouched, if there is none.
func (t *Table) Unset(tod TimeOfDay) error {
	i, found := t.search(tod)
	if !found {
		return fmt.Errorf("%w: %s", ErrTimeNotFound, tod)
	}
	t.events = slices.Delete(t.events, i, i+1)
	return nil
}

// Reset removes every event.
func (t *Table) Reset() {
	t.events = nil
}

// Reconfig replaces the whole table. The input need not be sorted.
// On ErrDuplicateTime or ErrMalformedTime the table is left untouched.
func (t *Table) Reconfig(events []Event) error {
	seen := make(map[TimeOfDay]struct{}, len(events))
	for _, e := range events {
		if !e.Time.Valid() {
			return fmt.Errorf("%w: %d seconds", ErrMalformedTime, int32(e.Time))
		}
		if _, dup := seen[e.Time]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTime, e.Time)
		}
		seen[e.Time] = struct{}{}
	}

	next := slices.Clone(events)
	sortEvents(next)
	t.events = next
	return nil
}

// StateAt returns the state in effect at the given time of day.
func (t *Table) StateAt(tod TimeOfDay) State {
	if len(t.events) == 0 {
		return StateOff
	}

	// Before the first event the last event's state wraps around from
	// the previous day.
	current := t.events[len(t.events)-1].State
	for _, e := range t.events {
		if tod < e.Time {
			return current
		}
		current = e.State
	}
	return current
}

// NextTransition returns the next instant strictly after now at which an
// event boundary is crossed. With fewer than two events the state never
// changes, so ok is false.
func (t *Table) NextTransition(now time.Time) (next time.Time, ok bool) {
	if len(t.events) < 2 {
		return time.Time{}, false
	}

	tod := TimeOfDayOf(now)
	for _, e := range t.events {
		if tod < e.Time {
			return strictlyAfter(now, e.Time.On(now), int(e.Time-tod)), true
		}
	}

	// Every boundary has passed today; wrap to the first one tomorrow.
	first := t.events[0].Time
	return strictlyAfter(now, first.On(now.AddDate(0, 0, 1)), secondsPerDay-int(tod)+int(first)), true
}

// strictlyAfter returns at, or now plus the wall-clock distance when at is not
// in the future (a DST fall-back repeats the wall clock).
func strictlyAfter(now, at time.Time, wallSeconds int) time.Time {
	if at.After(now) {
		return at
	}
	return now.Add(time.Duration(wallSeconds) * time.Second)
}

// sortEvents orders events by time. Stable so that restore-time
// de-duplication can keep the last occurrence.
func sortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return int(a.Time) - int(b.Time)
	})
}
