package timetable

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Definition declares a read-only timetable in the configuration file.
type Definition struct {
	ID   string
	Name string
}

// RegistryOptions carries the dependencies of a Registry.
type RegistryOptions struct {
	// Repo persists the storage collection. Required for Create, Rename,
	// Delete and LoadStorage.
	Repo Repository

	// Restore seeds timetables at creation and is cleared on deletion. Optional.
	Restore RestoreStore

	// History is cleared when a timetable is deleted. Optional.
	History HistoryRepository

	Timer     Timer
	Clock     clockwork.Clock
	Location  *time.Location
	Publisher Publisher
	Logger    Logger
}

// Registry owns every live timetable, from both the configuration file
// (read-only) and storage (editable through the API), and routes mutations
// to them by ID.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Timetable
	closed   bool

	repo      Repository
	restore   RestoreStore
	history   HistoryRepository
	timer     Timer
	clock     clockwork.Clock
	loc       *time.Location
	publisher Publisher
	logger    Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
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
	return &Registry{
		entities:  make(map[string]*Timetable),
		repo:      opts.Repo,
		restore:   opts.Restore,
		history:   opts.History,
		timer:     opts.Timer,
		clock:     opts.Clock,
		loc:       opts.Location,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
}

// LoadStorage starts every timetable in the storage collection that is not
// already running. Call once at startup.
func (r *Registry) LoadStorage(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading timetables: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	loaded := 0
	for _, rec := range records {
		if existing, ok := r.entities[rec.ID]; ok {
			if !existing.Config().Editable {
				r.logger.Error("stored timetable shadowed by configuration file", "timetable_id", rec.ID)
			}
			continue
		}
		r.startLocked(ctx, Config{ID: rec.ID, Name: rec.Name, Editable: true}, true)
		loaded++
	}

	r.logger.Info("storage timetables loaded", "count", loaded)
	return nil
}

// SyncYAML makes the read-only collection match defs: new definitions are
// started, renamed ones updated and missing ones removed. Definitions whose
// ID is invalid or already used by a stored timetable are skipped and
// reported in the returned error; the rest are still applied.
func (r *Registry) SyncYAML(ctx context.Context, defs []Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	var errs []error
	wanted := make(map[string]struct{}, len(defs))
	added, updated, removed := 0, 0, 0

	for _, def := range defs {
		if err := ValidateID(def.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		name := def.Name
		if name == "" {
			name = def.ID
		}
		name, err := ValidateName(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("timetable %s: %w", def.ID, err))
			continue
		}
		wanted[def.ID] = struct{}{}

		existing, ok := r.entities[def.ID]
		if !ok {
			r.startLocked(ctx, Config{ID: def.ID, Name: name}, true)
			added++
			continue
		}

		cfg := existing.Config()
		if cfg.Editable {
			errs = append(errs, fmt.Errorf("timetable %s: %w", def.ID, ErrExists))
			delete(wanted, def.ID)
			continue
		}
		if cfg.Name != name {
			if err := existing.UpdateConfig(Config{ID: def.ID, Name: name}); err != nil {
				errs = append(errs, fmt.Errorf("timetable %s: %w", def.ID, err))
				continue
			}
			updated++
		}
	}

	for id, tt := range r.entities {
		if tt.Config().Editable {
			continue
		}
		if _, ok := wanted[id]; ok {
			continue
		}
		r.removeLocked(ctx, id, tt)
		removed++
	}

	r.logger.Info("configuration timetables synced",
		"added", added,
		"updated", updated,
		"removed", removed,
	)
	return errors.Join(errs...)
}

// Create adds a timetable to the storage collection. Its ID is derived
// from name and made unique with a numeric suffix.
func (r *Registry) Create(ctx context.Context, name string) (StateUpdate, error) {
	name, err := ValidateName(name)
	if err != nil {
		return StateUpdate{}, err
	}
	if r.repo == nil {
		return StateUpdate{}, fmt.Errorf("creating timetable: no storage configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateUpdate{}, ErrClosed
	}

	id := uniqueSlug(GenerateSlug(name), func(candidate string) bool {
		_, taken := r.entities[candidate]
		return taken
	})
	if err := r.repo.Create(ctx, &Record{ID: id, Name: name}); err != nil {
		return StateUpdate{}, fmt.Errorf("creating timetable: %w", err)
	}

	// A deleted timetable with the same ID may have left a snapshot behind.
	if r.restore != nil {
		if err := r.restore.DeleteSnapshot(ctx, id); err != nil {
			r.logger.Warn("failed to clear restore state", "timetable_id", id, "error", err)
		}
	}
	tt := r.startLocked(ctx, Config{ID: id, Name: name, Editable: true}, false)
	r.logger.Info("timetable created", "timetable_id", id, "name", name)
	return tt.Snapshot(), nil
}

// Rename changes the name of a stored timetable.
func (r *Registry) Rename(ctx context.Context, id, name string) (StateUpdate, error) {
	name, err := ValidateName(name)
	if err != nil {
		return StateUpdate{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tt, err := r.editableLocked(id)
	if err != nil {
		return StateUpdate{}, err
	}
	if err := r.repo.Rename(ctx, id, name); err != nil {
		return StateUpdate{}, fmt.Errorf("renaming timetable: %w", err)
	}
	if err := tt.UpdateConfig(Config{ID: id, Name: name, Editable: true}); err != nil {
		return StateUpdate{}, err
	}
	return tt.Snapshot(), nil
}

// Delete removes a stored timetable, its restart snapshot and its history.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tt, err := r.editableLocked(id)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("deleting timetable: %w", err)
	}
	if r.history != nil {
		if err := r.history.DeleteHistory(ctx, id); err != nil {
			r.logger.Warn("failed to delete timetable history", "timetable_id", id, "error", err)
		}
	}
	r.removeLocked(ctx, id, tt)
	r.logger.Info("timetable deleted", "timetable_id", id)
	return nil
}

// Get returns the current state of a timetable.
func (r *Registry) Get(id string) (StateUpdate, error) {
	tt, err := r.lookup(id)
	if err != nil {
		return StateUpdate{}, err
	}
	return tt.Snapshot(), nil
}

// List returns the current state of every timetable ordered by ID.
func (r *Registry) List() []StateUpdate {
	r.mu.RLock()
	ids := slices.Sorted(maps.Keys(r.entities))
	entities := make([]*Timetable, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, r.entities[id])
	}
	r.mu.RUnlock()

	out := make([]StateUpdate, 0, len(entities))
	for _, tt := range entities {
		out = append(out, tt.Snapshot())
	}
	return out
}

// Len returns the number of live timetables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Set inserts or overwrites one event of timetable id.
func (r *Registry) Set(id string, at TimeOfDay, state State) (StateUpdate, error) {
	return r.mutate(id, func(tt *Timetable) error { return tt.Set(at, state) })
}

// Unset removes one event of timetable id.
func (r *Registry) Unset(id string, at TimeOfDay) (StateUpdate, error) {
	return r.mutate(id, func(tt *Timetable) error { return tt.Unset(at) })
}

// Reset clears timetable id.
func (r *Registry) Reset(id string) (StateUpdate, error) {
	return r.mutate(id, func(tt *Timetable) error { return tt.Reset() })
}

// Reconfig replaces every event of timetable id.
func (r *Registry) Reconfig(id string, events []Event) (StateUpdate, error) {
	return r.mutate(id, func(tt *Timetable) error { return tt.Reconfig(events) })
}

// Close stops every timetable's timer. Restart snapshots are kept.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, tt := range r.entities {
		tt.Close()
	}
	r.logger.Info("timetable registry closed", "count", len(r.entities))
}

func (r *Registry) mutate(id string, fn func(*Timetable) error) (StateUpdate, error) {
	tt, err := r.lookup(id)
	if err != nil {
		return StateUpdate{}, err
	}
	if err := fn(tt); err != nil {
		return StateUpdate{}, err
	}
	return tt.Snapshot(), nil
}

func (r *Registry) lookup(id string) (*Timetable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	tt, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tt, nil
}

// editableLocked returns the storage timetable id. Callers must hold r.mu.
func (r *Registry) editableLocked(id string) (*Timetable, error) {
	if r.closed {
		return nil, ErrClosed
	}
	tt, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !tt.Config().Editable {
		return nil, fmt.Errorf("%w: %s is defined in the configuration file", ErrReadOnly, id)
	}
	if r.repo == nil {
		return nil, fmt.Errorf("no storage configured")
	}
	return tt, nil
}

// startLocked creates and registers a timetable, seeding it from its
// restart snapshot when restore is set. Callers must hold r.mu.
func (r *Registry) startLocked(ctx context.Context, cfg Config, restore bool) *Timetable {
	tt := New(cfg, Options{
		Timer:     r.timer,
		Clock:     r.clock,
		Location:  r.loc,
		Publisher: r.publisher,
		Logger:    r.logger,
	})

	var snapshot *RestoreSnapshot
	if restore && r.restore != nil {
		snap, err := r.restore.LoadSnapshot(ctx, cfg.ID)
		switch {
		case err == nil:
			snapshot = snap
		case errors.Is(err, ErrNotFound):
		default:
			r.logger.Warn("failed to load restore state, starting empty",
				"timetable_id", cfg.ID,
				"error", err,
			)
		}
	}

	if err := tt.Resume(snapshot); err != nil {
		r.logger.Error("failed to start timetable", "timetable_id", cfg.ID, "error", err)
	}
	r.entities[cfg.ID] = tt
	return tt
}

// removeLocked tears down a timetable and announces its removal.
// Callers must hold r.mu.
func (r *Registry) removeLocked(ctx context.Context, id string, tt *Timetable) {
	cfg := tt.Config()
	tt.Close()
	delete(r.entities, id)

	if r.restore != nil {
		if err := r.restore.DeleteSnapshot(ctx, id); err != nil {
			r.logger.Warn("failed to delete restore state", "timetable_id", id, "error", err)
		}
	}

	r.publisher.Publish(StateUpdate{
		ID:       id,
		Name:     cfg.Name,
		Editable: cfg.Editable,
		Cause:    CauseRemoved,
		At:       r.clock.Now().UTC(),
		Removed:  true,
	})
}
