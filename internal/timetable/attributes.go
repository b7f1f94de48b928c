package timetable

import "fmt"

// Attribute is the flat wire form of an event used for restart snapshots,
// state attributes, MQTT payloads and the REST API:
//
//	{"time": "08:00:00", "state": "on"}
type Attribute struct {
	Time  string `json:"time"`
	State string `json:"state"`
}

// EncodeAttributes converts events into attributes, preserving order.
func EncodeAttributes(events []Event) []Attribute {
	attrs := make([]Attribute, 0, len(events))
	for _, e := range events {
		attrs = append(attrs, Attribute{
			Time:  e.Time.String(),
			State: e.State.String(),
		})
	}
	return attrs
}

// ParseAttribute validates a single attribute.
func ParseAttribute(a Attribute) (Event, error) {
	tod, err := ParseTimeOfDay(a.Time)
	if err != nil {
		return Event{}, err
	}
	state, err := ParseState(a.State)
	if err != nil {
		return Event{}, err
	}
	return Event{Time: tod, State: state}, nil
}

// ParseAttributes strictly converts attributes into events, as required for
// a reconfig request: any malformed entry or duplicate time fails the whole
// list. The result is in input order.
func ParseAttributes(attrs []Attribute) ([]Event, error) {
	events := make([]Event, 0, len(attrs))
	seen := make(map[TimeOfDay]int, len(attrs))
	for i, a := range attrs {
		e, err := ParseAttribute(a)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if first, dup := seen[e.Time]; dup {
			return nil, fmt.Errorf("entries %d and %d: %w: %s", first, i, ErrDuplicateTime, e.Time)
		}
		seen[e.Time] = i
		events = append(events, e)
	}
	return events, nil
}

// DecodeAttributes rebuilds events from a restart snapshot.
//
// A snapshot is trusted less than a live request: malformed entries are
// skipped and reported, and entries sharing a time collapse to the last one
// in snapshot order, matching the outcome of replaying them through Set.
// The result is sorted.
func DecodeAttributes(attrs []Attribute) ([]Event, []error) {
	var problems []error
	events := make([]Event, 0, len(attrs))
	for i, a := range attrs {
		e, err := ParseAttribute(a)
		if err != nil {
			problems = append(problems, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		events = append(events, e)
	}

	sortEvents(events)

	deduped := events[:0]
	for i, e := range events {
		if i+1 < len(events) && events[i+1].Time == e.Time {
			problems = append(problems, fmt.Errorf("%w: %s (kept last)", ErrDuplicateTime, e.Time))
			continue
		}
		deduped = append(deduped, e)
	}
	return deduped, problems
}
