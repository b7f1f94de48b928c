package timetable

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// ─── Test Helpers ──────────────────────────────────────────────────

// recordingPublisher captures every published update.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []StateUpdate
	ch      chan StateUpdate
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan StateUpdate, 64)}
}

func (p *recordingPublisher) Publish(u StateUpdate) {
	p.mu.Lock()
	p.updates = append(p.updates, u)
	p.mu.Unlock()
	select {
	case p.ch <- u:
	default:
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func (p *recordingPublisher) last() StateUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates[len(p.updates)-1]
}

// waitFor drains updates until one with the given cause arrives.
func (p *recordingPublisher) waitFor(t *testing.T, cause Cause) StateUpdate {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-p.ch:
			if u.Cause == cause {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q update", cause)
			return StateUpdate{}
		}
	}
}

// manualTimer records armed callbacks so tests can fire them by hand.
type manualTimer struct {
	mu    sync.Mutex
	armed []*manualHandle
}

type manualHandle struct {
	mu        sync.Mutex
	at        time.Time
	fn        func()
	cancelled bool
}

func (h *manualHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

func (h *manualHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (m *manualTimer) ArmOnce(at time.Time, fn func()) (TimerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &manualHandle{at: at, fn: fn}
	m.armed = append(m.armed, h)
	return h, nil
}

// outstanding returns the handles that have not been cancelled.
func (m *manualTimer) outstanding() []*manualHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualHandle
	for _, h := range m.armed {
		if !h.isCancelled() {
			out = append(out, h)
		}
	}
	return out
}

func (m *manualTimer) latest() *manualHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.armed) == 0 {
		return nil
	}
	return m.armed[len(m.armed)-1]
}

type failingTimer struct{}

func (failingTimer) ArmOnce(time.Time, func()) (TimerHandle, error) {
	return nil, errors.New("scheduler stopped")
}

var monday0900 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestTimetable(t *testing.T, clock clockwork.Clock, timer Timer) (*Timetable, *recordingPublisher) {
	t.Helper()
	pub := newRecordingPublisher()
	tt := New(Config{ID: "heating", Name: "Heating", Editable: true}, Options{
		Timer:     timer,
		Clock:     clock,
		Location:  time.UTC,
		Publisher: pub,
	})
	t.Cleanup(tt.Close)
	return tt, pub
}

func dayNight() []Event {
	return []Event{
		{tod(6, 0, 0), StateOn},
		{tod(18, 0, 0), StateOff},
	}
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestTimetable_StartEmpty(t *testing.T) {
	timer := &manualTimer{}
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)

	if err := tt.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d updates, want 1", pub.count())
	}
	u := pub.last()
	if u.Cause != CauseRestore || u.State != StateOff || u.NextTransition != nil {
		t.Errorf("update = %+v, want restore/off/no timer", u)
	}
	if len(u.Timetable) != 0 {
		t.Errorf("Timetable = %v, want empty", u.Timetable)
	}
	if len(timer.outstanding()) != 0 {
		t.Error("timer armed for an empty timetable")
	}
}

func TestTimetable_StartRestoresSnapshot(t *testing.T) {
	timer := &manualTimer{}
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)

	err := tt.Start([]Attribute{
		{Time: "18:00:00", State: "off"},
		{Time: "bogus", State: "on"},
		{Time: "06:00:00", State: "off"},
		{Time: "06:00:00", State: "on"},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	u := pub.last()
	if u.State != StateOn {
		t.Errorf("State = %s, want on", u.State)
	}
	want := []Attribute{{"06:00:00", "on"}, {"18:00:00", "off"}}
	if len(u.Timetable) != 2 || u.Timetable[0] != want[0] || u.Timetable[1] != want[1] {
		t.Errorf("Timetable = %v, want %v", u.Timetable, want)
	}
	if u.NextTransition == nil || !u.NextTransition.Equal(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("NextTransition = %v, want today 18:00", u.NextTransition)
	}
}

func TestTimetable_ResumeReportsChangeAgainstStoredState(t *testing.T) {
	events := []Attribute{{Time: "06:00:00", State: "on"}, {Time: "18:00:00", State: "off"}}
	tests := []struct {
		name   string
		stored State
		want   bool
	}{
		{"same state as saved", StateOn, false},
		{"state moved on while down", StateOff, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
			if err := tt.Resume(&RestoreSnapshot{ID: "heating", State: tc.stored, Timetable: events}); err != nil {
				t.Fatalf("Resume() error = %v", err)
			}
			u := pub.last()
			if u.Cause != CauseRestore || u.State != StateOn {
				t.Fatalf("update = %+v, want restore/on", u)
			}
			if u.Changed != tc.want {
				t.Errorf("Changed = %v, want %v", u.Changed, tc.want)
			}
			if u.Previous != tc.stored {
				t.Errorf("Previous = %s, want %s", u.Previous, tc.stored)
			}
		})
	}
}

func TestTimetable_ResumeNilStartsEmpty(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	if err := tt.Resume(nil); err != nil {
		t.Fatalf("Resume(nil) error = %v", err)
	}
	if u := pub.last(); u.State != StateOff || u.Changed {
		t.Errorf("update = %+v, want off and unchanged", u)
	}
}

func TestTimetable_StartTwiceIsNoop(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	_ = tt.Start(nil)
	_ = tt.Start([]Attribute{{Time: "06:00:00", State: "on"}})
	if pub.count() != 1 {
		t.Errorf("published %d updates, want 1", pub.count())
	}
	if len(tt.Events()) != 0 {
		t.Error("second Start changed the table")
	}
}

func TestTimetable_MutationsPublishAndReschedule(t *testing.T) {
	timer := &manualTimer{}
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)
	_ = tt.Start(nil)

	if err := tt.Set(tod(6, 0, 0), StateOn); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	u := pub.last()
	if u.Cause != CauseSet || u.State != StateOn || !u.Changed {
		t.Errorf("after first Set: %+v", u)
	}
	if u.NextTransition != nil {
		t.Error("timer armed with a single event")
	}

	if err := tt.Set(tod(18, 0, 0), StateOff); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	u = pub.last()
	if u.Changed {
		t.Error("Changed = true, state stayed on")
	}
	if u.NextTransition == nil || !u.NextTransition.Equal(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("NextTransition = %v, want today 18:00", u.NextTransition)
	}
	if got := len(timer.outstanding()); got != 1 {
		t.Errorf("outstanding timers = %d, want 1", got)
	}

	if err := tt.Unset(tod(18, 0, 0)); err != nil {
		t.Fatalf("Unset() error = %v", err)
	}
	if got := len(timer.outstanding()); got != 0 {
		t.Errorf("outstanding timers after Unset = %d, want 0", got)
	}

	if err := tt.Reconfig(dayNight()); err != nil {
		t.Fatalf("Reconfig() error = %v", err)
	}
	if pub.last().Cause != CauseReconfig {
		t.Errorf("Cause = %s, want reconfig", pub.last().Cause)
	}

	if err := tt.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	u = pub.last()
	if u.State != StateOff || u.NextTransition != nil || u.Cause != CauseReset {
		t.Errorf("after Reset: %+v", u)
	}
	if got := len(timer.outstanding()); got != 0 {
		t.Errorf("outstanding timers after Reset = %d, want 0", got)
	}
}

func TestTimetable_AtMostOneOutstandingTimer(t *testing.T) {
	timer := &manualTimer{}
	tt, _ := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)
	_ = tt.Start(nil)

	for h := 0; h < 24; h++ {
		state := StateOff
		if h%2 == 0 {
			state = StateOn
		}
		if err := tt.Set(tod(h, 0, 0), state); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if got := len(timer.outstanding()); got > 1 {
			t.Fatalf("outstanding timers = %d after %d sets", got, h+1)
		}
	}
	if got := len(timer.outstanding()); got != 1 {
		t.Errorf("outstanding timers = %d, want 1", got)
	}
	if at := timer.latest().at; !at.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("armed at %v, want today 10:00", at)
	}
}

func TestTimetable_UnsetMissingPublishesNothing(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	before := pub.count()

	if err := tt.Unset(tod(7, 0, 0)); !errors.Is(err, ErrTimeNotFound) {
		t.Fatalf("Unset() error = %v, want ErrTimeNotFound", err)
	}
	if pub.count() != before {
		t.Error("failed Unset published an update")
	}
}

func TestTimetable_ReconfigDuplicateRejected(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	before := pub.count()

	err := tt.Reconfig([]Event{{tod(8, 0, 0), StateOn}, {tod(8, 0, 0), StateOff}})
	if !errors.Is(err, ErrDuplicateTime) {
		t.Fatalf("Reconfig() error = %v, want ErrDuplicateTime", err)
	}
	if pub.count() != before {
		t.Error("rejected Reconfig published an update")
	}
	if len(tt.Events()) != 2 {
		t.Errorf("Events() = %v, want the previous table", tt.Events())
	}
}

func TestTimetable_TimerFiresAndRearms(t *testing.T) {
	clock := clockwork.NewFakeClockAt(monday0900)
	tt, pub := newTestTimetable(t, clock, NewClockTimer(clock))
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())

	if tt.State() != StateOn {
		t.Fatalf("State() = %s, want on at 09:00", tt.State())
	}

	clock.Advance(9 * time.Hour)
	u := pub.waitFor(t, CauseTimer)
	if u.State != StateOff || !u.Changed {
		t.Errorf("at 18:00: %+v, want changed to off", u)
	}
	if u.NextTransition == nil || !u.NextTransition.Equal(time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("NextTransition = %v, want tomorrow 06:00", u.NextTransition)
	}

	clock.Advance(12 * time.Hour)
	u = pub.waitFor(t, CauseTimer)
	if u.State != StateOn {
		t.Errorf("at 06:00: State = %s, want on", u.State)
	}
}

func TestTimetable_StaleCallbackIgnored(t *testing.T) {
	timer := &manualTimer{}
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	stale := timer.latest()

	_ = tt.Set(tod(12, 0, 0), StateOn)
	before := pub.count()

	stale.fn()
	if pub.count() != before {
		t.Error("superseded timer callback published an update")
	}

	timer.latest().fn()
	if pub.count() != before+1 || pub.last().Cause != CauseTimer {
		t.Error("current timer callback did not publish")
	}
}

func TestTimetable_Close(t *testing.T) {
	timer := &manualTimer{}
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	armed := timer.latest()
	before := pub.count()

	tt.Close()
	if !armed.isCancelled() {
		t.Error("Close did not cancel the armed timer")
	}

	armed.fn()
	if pub.count() != before {
		t.Error("callback after Close published an update")
	}

	if err := tt.Set(tod(1, 0, 0), StateOn); !errors.Is(err, ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
	if err := tt.Reset(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset() after Close error = %v, want ErrClosed", err)
	}
	tt.Close()
}

func TestTimetable_UpdateConfigKeepsID(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	_ = tt.Start(nil)

	if err := tt.UpdateConfig(Config{ID: "other", Name: "Hot Water"}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	cfg := tt.Config()
	if cfg.ID != "heating" || cfg.Name != "Hot Water" || cfg.Editable {
		t.Errorf("Config() = %+v", cfg)
	}
	if u := pub.last(); u.Cause != CauseConfig || u.Name != "Hot Water" {
		t.Errorf("update = %+v", u)
	}
}

func TestTimetable_ArmFailureIsLogged(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), failingTimer{})
	_ = tt.Start(nil)

	if err := tt.Reconfig(dayNight()); err != nil {
		t.Fatalf("Reconfig() error = %v", err)
	}
	if u := pub.last(); u.NextTransition != nil || u.State != StateOn {
		t.Errorf("update = %+v, want on with no timer", u)
	}
}

func TestTimetable_Snapshot(t *testing.T) {
	tt, pub := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), &manualTimer{})
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	before := pub.count()

	s := tt.Snapshot()
	if pub.count() != before {
		t.Error("Snapshot published an update")
	}
	if s.ID != "heating" || s.State != StateOn || len(s.Timetable) != 2 || s.Changed {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestTimetable_ConcurrentMutations(t *testing.T) {
	timer := &manualTimer{}
	tt, _ := newTestTimetable(t, clockwork.NewFakeClockAt(monday0900), timer)
	_ = tt.Start(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = tt.Set(tod(i, 0, 0), StateOn)
			_ = tt.Set(tod(i, 30, 0), StateOff)
		}(i)
	}
	wg.Wait()

	if got := len(tt.Events()); got != 40 {
		t.Errorf("len(Events()) = %d, want 40", got)
	}
	if !isSorted(tt.Events()) {
		t.Error("events not sorted after concurrent sets")
	}
	if got := len(timer.outstanding()); got != 1 {
		t.Errorf("outstanding timers = %d, want 1", got)
	}
}
