package timetable

import (
	"fmt"
	"strings"
	"time"
)

// State is the binary output of a timetable.
type State bool

const (
	// StateOff is the default state, and the state of an empty timetable.
	StateOff State = false

	// StateOn is the active state.
	StateOn State = true
)

// String returns "on" or "off".
func (s State) String() string {
	if s {
		return "on"
	}
	return "off"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts "on" or "off" (case-insensitive) into a State.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return StateOn, nil
	case "off":
		return StateOff, nil
	default:
		return StateOff, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// Time-of-day bounds.
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
)

// TimeOfDay is a naive wall-clock time with second resolution,
// stored as seconds since midnight in [0, 86400).
type TimeOfDay int32

// Midnight is 00:00:00.
const Midnight TimeOfDay = 0

// NewTimeOfDay builds a TimeOfDay from its components.
// Out-of-range components are rejected rather than normalised.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d out of range", ErrMalformedTime, hour, minute, second)
	}
	return TimeOfDay(hour*secondsPerHour + minute*secondsPerMinute + second), nil
}

// MustTimeOfDay is like NewTimeOfDay but panics on invalid input.
// Intended for constants and tests.
func MustTimeOfDay(hour, minute, second int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute, second)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the wall-clock time of day of t in t's own location.
// Sub-second precision is dropped.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*secondsPerHour + t.Minute()*secondsPerMinute + t.Second())
}

// timeLayouts are tried in order by ParseTimeOfDay. Fractional seconds are
// accepted after the seconds field even though no layout names them.
var timeLayouts = []string{
	"15:04:05",
	"15:04:05Z07:00",
	"15:04",
	"15:04Z07:00",
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS", optionally followed by
// fractional seconds and a zone suffix ("Z", "+02:00"). The fraction and
// the zone are discarded: the wall-clock reading is taken as written.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrMalformedTime)
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
}

// Valid reports whether t lies within [00:00:00, 24:00:00).
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < secondsPerDay
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / secondsPerHour }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % secondsPerHour / secondsPerMinute }

// Second returns the second component.
func (t TimeOfDay) Second() int { return int(t) % secondsPerMinute }

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// On returns the instant at which this time of day occurs on the calendar
// day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d seconds", ErrMalformedTime, int32(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event marks that, each day at Time, the timetable's state becomes State.
type Event struct {
	Time  TimeOfDay `json:"time"`
	State State     `json:"state"`
}
