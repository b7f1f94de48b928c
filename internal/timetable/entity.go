package timetable

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config is the immutable identity of a timetable. It is replaced
// wholesale through UpdateConfig, never modified in place.
type Config struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Editable bool   `json:"editable"`
}

// Cause records why a state update was published.
type Cause string

// Update causes.
const (
	CauseRestore  Cause = "restore"
	CauseSet      Cause = "set"
	CauseUnset    Cause = "unset"
	CauseReset    Cause = "reset"
	CauseReconfig Cause = "reconfig"
	CauseConfig   Cause = "config"
	CauseTimer    Cause = "timer"
	CauseRemoved  Cause = "removed"
)

// StateUpdate is published after every recomputation.
type StateUpdate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Editable bool   `json:"editable"`

	State    State `json:"state"`
	Previous State `json:"previous"`
	Changed  bool  `json:"changed"`

	// Timetable is the full event list in stored order.
	Timetable []Attribute `json:"timetable"`

	// NextTransition is nil when no timer is armed.
	NextTransition *time.Time `json:"next_transition,omitempty"`

	Cause   Cause     `json:"cause"`
	At      time.Time `json:"at"`
	Removed bool      `json:"removed,omitempty"`
}

// Publisher receives state updates. Publish is called with the timetable's
// lock held and must not block.
type Publisher interface {
	Publish(update StateUpdate)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(StateUpdate)

// Publish calls f(update).
func (f PublisherFunc) Publish(update StateUpdate) { f(update) }

type noopPublisher struct{}

func (noopPublisher) Publish(StateUpdate) {}

// Options carries the collaborators of a Timetable. Zero values are
// replaced with working defaults.
type Options struct {
	// Timer arms the next-transition callback. Defaults to a ClockTimer on Clock.
	Timer Timer

	// Clock is read for "now". Defaults to the real clock.
	Clock clockwork.Clock

	// Location is the zone whose wall clock the events refer to. Defaults to time.Local.
	Location *time.Location

	Publisher Publisher
	Logger    Logger
}

// Timetable binds a Table to a clock and a timer.
//
// Every successful operation recomputes the current state, re-arms the
// single next-transition timer and publishes a StateUpdate, all under one
// lock so no observer sees a partially applied mutation.
//
// Thread Safety: all methods are safe for concurrent use.
type Timetable struct {
	mu sync.Mutex

	cfg   Config
	table Table
	state State

	started bool
	closed  bool

	// generation is bumped whenever the armed timer is superseded; a
	// callback carrying an older generation is ignored.
	generation uint64
	handle     TimerHandle
	next       *time.Time

	timer     Timer
	clock     clockwork.Clock
	loc       *time.Location
	publisher Publisher
	logger    Logger
}

// New creates an empty, unstarted timetable.
func New(cfg Config, opts Options) *Timetable {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timer == nil {
		opts.Timer = NewClockTimer(opts.Clock)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Timetable{
		cfg:       cfg,
		timer:     opts.Timer,
		clock:     opts.Clock,
		loc:       opts.Location,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
}

// Start seeds the table from a restart snapshot (nil for none) and performs
// the first computation. Malformed snapshot entries are skipped, and entries
// sharing a time keep the last one; both are logged. Calling Start again is
// a no-op.
func (t *Timetable) Start(snapshot []Attribute) error {
	return t.start(StateOff, snapshot)
}

// Resume is Start for a stored snapshot. The snapshot's state is taken as
// the previous one, so the first update only reports a change when the
// state computed now differs from the one last saved.
func (t *Timetable) Resume(snap *RestoreSnapshot) error {
	if snap == nil {
		return t.Start(nil)
	}
	return t.start(snap.State, snap.Timetable)
}

func (t *Timetable) start(prior State, snapshot []Attribute) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return nil
	}

	if len(snapshot) > 0 {
		events, problems := DecodeAttributes(snapshot)
		for _, p := range problems {
			t.logger.Warn("ignoring restore entry", "timetable_id", t.cfg.ID, "error", p)
		}
		if err := t.table.Reconfig(events); err != nil {
			// DecodeAttributes never yields duplicates or invalid times.
			return err
		}
		t.logger.Debug("timetable restored", "timetable_id", t.cfg.ID, "events", len(events))
	}

	t.started = true
	t.state = prior
	t.apply(CauseRestore)
	return nil
}

// Set inserts or overwrites the event at tod.
func (t *Timetable) Set(tod TimeOfDay, state State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if err := t.table.Set(tod, state); err != nil {
		return err
	}
	t.apply(CauseSet)
	return nil
}

// Unset removes the event at tod. When there is none it returns
// ErrTimeNotFound and nothing is recomputed or published.
func (t *Timetable) Unset(tod TimeOfDay) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if err := t.table.Unset(tod); err != nil {
		return err
	}
	t.apply(CauseUnset)
	return nil
}

// Reset removes every event, which leaves the state off and no timer armed.
func (t *Timetable) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.table.Reset()
	t.apply(CauseReset)
	return nil
}

// Reconfig replaces all events. On ErrDuplicateTime the timetable is
// unchanged.
func (t *Timetable) Reconfig(events []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if err := t.table.Reconfig(events); err != nil {
		return err
	}
	t.apply(CauseReconfig)
	return nil
}

// UpdateConfig swaps the configuration. The ID is fixed for the lifetime of
// the timetable; only Name and Editable are taken from cfg.
func (t *Timetable) UpdateConfig(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	cfg.ID = t.cfg.ID
	t.cfg = cfg
	t.apply(CauseConfig)
	return nil
}

// Close cancels the armed timer. Callbacks already in flight become no-ops
// and every later mutation returns ErrClosed. Close is idempotent.
func (t *Timetable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.cancelTimer()
}

// Config returns the current configuration.
func (t *Timetable) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// State returns the state as of the last computation.
func (t *Timetable) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Events returns a copy of the stored events.
func (t *Timetable) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table.Events()
}

// Snapshot returns the current state as a StateUpdate without publishing it.
func (t *Timetable) Snapshot() StateUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.update("", t.state, t.clock.Now())
	u.Changed = false
	return u
}

// fire is the timer callback for the given generation.
func (t *Timetable) fire(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || generation != t.generation {
		return
	}
	t.handle = nil
	t.apply(CauseTimer)
}

// apply recomputes the state, re-arms the timer and publishes.
// Callers must hold t.mu.
func (t *Timetable) apply(cause Cause) {
	now := t.clock.Now().In(t.loc)
	previous := t.state
	t.state = t.table.StateAt(TimeOfDayOf(now))
	t.reschedule(now)

	u := t.update(cause, previous, now)
	t.publisher.Publish(u)

	if u.Changed && cause != CauseRestore {
		t.logger.Info("timetable state changed",
			"timetable_id", t.cfg.ID,
			"state", t.state.String(),
			"cause", string(cause),
		)
	}
}

// reschedule cancels any armed timer and arms one for the next transition.
// Callers must hold t.mu.
func (t *Timetable) reschedule(now time.Time) {
	t.cancelTimer()

	next, ok := t.table.NextTransition(now)
	if !ok {
		return
	}

	generation := t.generation
	handle, err := t.timer.ArmOnce(next, func() { t.fire(generation) })
	if err != nil {
		t.logger.Error("failed to arm timetable timer",
			"timetable_id", t.cfg.ID,
			"at", next,
			"error", err,
		)
		return
	}
	t.handle = handle
	t.next = &next
}

// cancelTimer cancels the armed timer and invalidates its callback.
// Callers must hold t.mu.
func (t *Timetable) cancelTimer() {
	t.generation++
	if t.handle != nil {
		t.handle.Cancel()
		t.handle = nil
	}
	t.next = nil
}

// update builds a StateUpdate. Callers must hold t.mu.
func (t *Timetable) update(cause Cause, previous State, now time.Time) StateUpdate {
	u := StateUpdate{
		ID:        t.cfg.ID,
		Name:      t.cfg.Name,
		Editable:  t.cfg.Editable,
		State:     t.state,
		Previous:  previous,
		Changed:   previous != t.state,
		Timetable: EncodeAttributes(t.table.events),
		Cause:     cause,
		At:        now.UTC(),
	}
	if t.next != nil {
		next := *t.next
		u.NextTransition = &next
	}
	return u
}
