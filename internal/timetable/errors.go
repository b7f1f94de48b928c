package timetable

import "errors"

// Domain errors for the timetable package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, timetable.ErrTimeNotFound) {
//	    // nothing scheduled at that time
//	}
var (
	// ErrNotFound is returned when a timetable ID does not exist.
	ErrNotFound = errors.New("timetable: not found")

	// ErrExists is returned when creating a timetable with an ID that already exists.
	ErrExists = errors.New("timetable: already exists")

	// ErrReadOnly is returned when renaming or deleting a timetable defined in YAML.
	ErrReadOnly = errors.New("timetable: read-only")

	// ErrInvalidName is returned when a timetable name is empty or too long.
	ErrInvalidName = errors.New("timetable: invalid name")

	// ErrTimeNotFound is returned by Unset when no event exists at the given time.
	ErrTimeNotFound = errors.New("timetable: no event at time")

	// ErrDuplicateTime is returned by Reconfig when two events share a time.
	ErrDuplicateTime = errors.New("timetable: duplicate time")

	// ErrMalformedTime is returned when a time-of-day cannot be parsed or is out of range.
	ErrMalformedTime = errors.New("timetable: malformed time")

	// ErrInvalidState is returned when a state is neither "on" nor "off".
	ErrInvalidState = errors.New("timetable: invalid state")

	// ErrInvalidCommand is returned when a bus command has an unknown action
	// or is missing a required field.
	ErrInvalidCommand = errors.New("timetable: invalid command")

	// ErrClosed is returned when operating on a timetable that has been torn down.
	ErrClosed = errors.New("timetable: closed")
)
