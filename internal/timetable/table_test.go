package timetable

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// tod is shorthand for MustTimeOfDay in tests.
func tod(h, m, s int) TimeOfDay {
	return MustTimeOfDay(h, m, s)
}

func isSorted(events []Event) bool {
	for i := 1; i < len(events); i++ {
		if events[i-1].Time >= events[i].Time {
			return false
		}
	}
	return true
}

func TestTable_SetKeepsSorted(t *testing.T) {
	table := &Table{}
	inputs := []Event{
		{tod(20, 0, 0), StateOff},
		{tod(6, 30, 0), StateOn},
		{tod(12, 0, 0), StateOff},
		{tod(0, 0, 0), StateOn},
		{tod(23, 59, 59), StateOn},
		{tod(12, 0, 0), StateOn},
	}
	for _, e := range inputs {
		if err := table.Set(e.Time, e.State); err != nil {
			t.Fatalf("Set(%s) error = %v", e.Time, err)
		}
		if !isSorted(table.Events()) {
			t.Fatalf("events not strictly ascending after Set(%s): %v", e.Time, table.Events())
		}
	}
	if table.Len() != 5 {
		t.Errorf("Len() = %d, want 5", table.Len())
	}
}

func TestTable_SetIsIdempotent(t *testing.T) {
	table := &Table{}
	_ = table.Set(tod(8, 0, 0), StateOn)
	once := table.Events()

	_ = table.Set(tod(8, 0, 0), StateOn)
	if !slices.Equal(once, table.Events()) {
		t.Errorf("second Set changed table: %v -> %v", once, table.Events())
	}
}

func TestTable_SetOverwrites(t *testing.T) {
	table := &Table{}
	_ = table.Set(tod(8, 0, 0), StateOn)
	_ = table.Set(tod(8, 0, 0), StateOff)

	events := table.Events()
	if len(events) != 1 {
		t.Fatalf("len = %d, want 1", len(events))
	}
	if events[0].State != StateOff {
		t.Errorf("State = %s, want off", events[0].State)
	}
}

func TestTable_SetRejectsOutOfRange(t *testing.T) {
	table := &Table{}
	for _, v := range []TimeOfDay{-1, secondsPerDay, secondsPerDay + 10} {
		if err := table.Set(v, StateOn); !errors.Is(err, ErrMalformedTime) {
			t.Errorf("Set(%d) error = %v, want ErrMalformedTime", v, err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}

func TestTable_UnsetMissingLeavesTable(t *testing.T) {
	table, err := NewTable([]Event{
		{tod(8, 0, 0), StateOn},
		{tod(20, 0, 0), StateOff},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	before := table.Events()

	err = table.Unset(tod(9, 0, 0))
	if !errors.Is(err, ErrTimeNotFound) {
		t.Fatalf("Unset() error = %v, want ErrTimeNotFound", err)
	}
	if !slices.Equal(before, table.Events()) {
		t.Errorf("table changed after failed Unset: %v -> %v", before, table.Events())
	}
}

func TestTable_Unset(t *testing.T) {
	table, _ := NewTable([]Event{
		{tod(8, 0, 0), StateOn},
		{tod(12, 0, 0), StateOff},
		{tod(20, 0, 0), StateOff},
	})
	if err := table.Unset(tod(12, 0, 0)); err != nil {
		t.Fatalf("Unset() error = %v", err)
	}
	want := []Event{{tod(8, 0, 0), StateOn}, {tod(20, 0, 0), StateOff}}
	if !slices.Equal(table.Events(), want) {
		t.Errorf("Events() = %v, want %v", table.Events(), want)
	}
}

func TestTable_Reset(t *testing.T) {
	table, _ := NewTable([]Event{{tod(8, 0, 0), StateOn}})
	table.Reset()
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if got := table.StateAt(tod(9, 0, 0)); got != StateOff {
		t.Errorf("StateAt() = %s, want off", got)
	}
}

func TestTable_ReconfigSortsInput(t *testing.T) {
	table := &Table{}
	err := table.Reconfig([]Event{
		{tod(20, 0, 0), StateOff},
		{tod(8, 0, 0), StateOn},
		{tod(12, 0, 0), StateOff},
	})
	if err != nil {
		t.Fatalf("Reconfig() error = %v", err)
	}
	want := []Event{
		{tod(8, 0, 0), StateOn},
		{tod(12, 0, 0), StateOff},
		{tod(20, 0, 0), StateOff},
	}
	if !slices.Equal(table.Events(), want) {
		t.Errorf("Events() = %v, want %v", table.Events(), want)
	}
}

func TestTable_ReconfigDuplicateIsAtomic(t *testing.T) {
	table, _ := NewTable([]Event{{tod(7, 0, 0), StateOn}, {tod(22, 0, 0), StateOff}})
	before := table.Events()

	err := table.Reconfig([]Event{
		{tod(8, 0, 0), StateOn},
		{tod(9, 0, 0), StateOff},
		{tod(8, 0, 0), StateOff},
	})
	if !errors.Is(err, ErrDuplicateTime) {
		t.Fatalf("Reconfig() error = %v, want ErrDuplicateTime", err)
	}
	if !slices.Equal(before, table.Events()) {
		t.Errorf("table changed after rejected Reconfig: %v -> %v", before, table.Events())
	}
}

func TestTable_ReconfigDoesNotAliasInput(t *testing.T) {
	input := []Event{{tod(20, 0, 0), StateOff}, {tod(8, 0, 0), StateOn}}
	table := &Table{}
	_ = table.Reconfig(input)

	input[0].State = StateOn
	if table.Events()[1].State != StateOff {
		t.Error("mutating the input changed the table")
	}
	if input[0].Time != tod(20, 0, 0) {
		t.Error("Reconfig reordered the caller's slice")
	}
}

func TestTable_StateAtWrapAround(t *testing.T) {
	table, _ := NewTable([]Event{
		{tod(8, 0, 0), StateOn},
		{tod(20, 0, 0), StateOff},
	})

	tests := []struct {
		at   TimeOfDay
		want State
	}{
		{tod(0, 0, 0), StateOff},
		{tod(7, 59, 59), StateOff},
		{tod(8, 0, 0), StateOn},
		{tod(12, 0, 0), StateOn},
		{tod(19, 59, 59), StateOn},
		{tod(20, 0, 0), StateOff},
		{tod(23, 59, 59), StateOff},
	}
	for _, tt := range tests {
		t.Run(tt.at.String(), func(t *testing.T) {
			if got := table.StateAt(tt.at); got != tt.want {
				t.Errorf("StateAt(%s) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}

func TestTable_StateAtCarriesLastEventOverMidnight(t *testing.T) {
	// The last event is ON, so the early morning is ON too.
	table, _ := NewTable([]Event{
		{tod(6, 0, 0), StateOff},
		{tod(22, 0, 0), StateOn},
	})
	if got := table.StateAt(tod(2, 0, 0)); got != StateOn {
		t.Errorf("StateAt(02:00) = %s, want on", got)
	}
	if got := table.StateAt(tod(6, 0, 0)); got != StateOff {
		t.Errorf("StateAt(06:00) = %s, want off", got)
	}
}

func TestTable_StateAtEmptyIsOff(t *testing.T) {
	table := &Table{}
	for _, at := range []TimeOfDay{tod(0, 0, 0), tod(12, 0, 0), tod(23, 59, 59)} {
		if got := table.StateAt(at); got != StateOff {
			t.Errorf("StateAt(%s) = %s, want off", at, got)
		}
	}
}

func TestTable_SingleEventIsConstant(t *testing.T) {
	table, _ := NewTable([]Event{{tod(12, 0, 0), StateOn}})
	for _, at := range []TimeOfDay{tod(0, 0, 0), tod(11, 59, 59), tod(12, 0, 0), tod(23, 59, 59)} {
		if got := table.StateAt(at); got != StateOn {
			t.Errorf("StateAt(%s) = %s, want on", at, got)
		}
	}
	if _, ok := table.NextTransition(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)); ok {
		t.Error("NextTransition() ok = true, want false for a single event")
	}
}

func TestTable_NextTransition(t *testing.T) {
	table, _ := NewTable([]Event{
		{tod(6, 0, 0), StateOn},
		{tod(18, 0, 0), StateOff},
	})

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "wraps to tomorrow",
			now:  time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on a boundary picks the next one",
			now:  time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "before the first event",
			now:  time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "month end wraps",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.NextTransition(tt.now)
			if !ok {
				t.Fatal("NextTransition() ok = false, want true")
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTable_NextTransitionEmpty(t *testing.T) {
	table := &Table{}
	if _, ok := table.NextTransition(time.Now()); ok {
		t.Error("NextTransition() ok = true, want false")
	}
}

func TestTable_NextTransitionUsesLocalWallClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	table, _ := NewTable([]Event{
		{tod(6, 0, 0), StateOn},
		{tod(18, 0, 0), StateOff},
	})

	// 15:00 UTC is 17:00 wall-clock in loc.
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC).In(loc)
	got, ok := table.NextTransition(now)
	if !ok {
		t.Fatal("NextTransition() ok = false")
	}
	want := time.Date(2026, 3, 2, 18, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextTransition() = %v, want %v", got, want)
	}
}

func TestTable_NextTransitionIsStrictlyAfterNow(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	table, _ := NewTable([]Event{
		{tod(1, 30, 0), StateOn},
		{tod(12, 0, 0), StateOff},
	})

	// On 2026-10-25 the clocks go back at 02:00 BST, so 01:30 occurs
	// twice. During the second 01:15 the first 01:30 is in the past.
	now := time.Date(2026, 10, 25, 1, 15, 0, 0, time.UTC).In(loc)
	got, ok := table.NextTransition(now)
	if !ok {
		t.Fatal("NextTransition() ok = false")
	}
	if !got.After(now) {
		t.Errorf("NextTransition() = %v, not after %v", got, now)
	}
}
