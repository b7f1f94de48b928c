package timetable

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Mock Sinks ────────────────────────────────────────────────────

type recordingSink struct {
	mu      sync.Mutex
	name    string
	updates []StateUpdate
	err     error
	block   chan struct{}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, u StateUpdate) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type countingDrops struct {
	mu  sync.Mutex
	ids []string
}

func (c *countingDrops) RecordDropped(id string) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

type mockMQTT struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	retained []bool
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload)
	m.retained = append(m.retained, retained)
	return nil
}

type mockHub struct {
	channels []string
	payloads []any
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.channels = append(h.channels, channel)
	h.payloads = append(h.payloads, payload)
}

type mockTelemetry struct {
	writes int
	lastOn bool
}

func (m *mockTelemetry) WriteTimetableState(_, _ string, on bool, _ string, _ time.Time) {
	m.writes++
	m.lastOn = on
}

type mockRecorder struct {
	states    map[string]bool
	updates   int
	forgotten []string
}

func (m *mockRecorder) SetState(id string, on bool, _ int) {
	if m.states == nil {
		m.states = make(map[string]bool)
	}
	m.states[id] = on
}

func (m *mockRecorder) SetNextTransition(string, *time.Time) {}

func (m *mockRecorder) RecordUpdate(string, string, bool) { m.updates++ }

func (m *mockRecorder) Forget(id string) { m.forgotten = append(m.forgotten, id) }

// ─── Dispatcher ────────────────────────────────────────────────────

func TestDispatcher_DeliversInOrder(t *testing.T) {
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second", err: errors.New("broker down")}
	d := NewDispatcher(8, nil, first, second)
	d.Start()

	for i := 0; i < 5; i++ {
		d.Publish(StateUpdate{ID: "porch", Cause: CauseSet})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if first.count() != 5 || second.count() != 5 {
		t.Errorf("deliveries = %d, %d, want 5 each", first.count(), second.count())
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &recordingSink{name: "slow", block: block}
	drops := &countingDrops{}
	d := NewDispatcher(1, nil, sink)
	d.SetDropRecorder(drops)

	// Not started, so the queue holds exactly one update.
	d.Publish(StateUpdate{ID: "a"})
	d.Publish(StateUpdate{ID: "b"})
	d.Publish(StateUpdate{ID: "c"})

	if len(drops.ids) != 2 || drops.ids[0] != "b" {
		t.Errorf("dropped = %v, want [b c]", drops.ids)
	}

	close(block)
	d.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.Stop(ctx)
	if sink.count() != 1 {
		t.Errorf("delivered = %d, want 1", sink.count())
	}
}

func TestDispatcher_PublishAfterStopIsDiscarded(t *testing.T) {
	sink := &recordingSink{name: "s"}
	d := NewDispatcher(4, nil, sink)
	d.Start()
	_ = d.Stop(context.Background())

	d.Publish(StateUpdate{ID: "late"})
	if sink.count() != 0 {
		t.Errorf("delivered %d updates after Stop", sink.count())
	}
}

func TestDispatcher_StopWithoutStart(t *testing.T) {
	d := NewDispatcher(0, nil)
	if err := d.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// ─── Sinks ─────────────────────────────────────────────────────────

func TestMQTTSink(t *testing.T) {
	client := &mockMQTT{}
	sink := NewMQTTSink(client, func(id string) string { return "graylogic/core/timetable/" + id + "/state" }, 1)
	ctx := context.Background()

	u := StateUpdate{ID: "porch", State: StateOn, Timetable: []Attribute{{"06:00:00", "on"}}, Cause: CauseSet}
	if err := sink.Handle(ctx, u); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if client.topics[0] != "graylogic/core/timetable/porch/state" || !client.retained[0] {
		t.Errorf("published to %s retained=%v", client.topics[0], client.retained[0])
	}
	var decoded map[string]any
	if err := json.Unmarshal(client.payloads[0], &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded["state"] != "on" || decoded["cause"] != "set" {
		t.Errorf("payload = %v", decoded)
	}

	if err := sink.Handle(ctx, StateUpdate{ID: "porch", Removed: true}); err != nil {
		t.Fatalf("Handle(removed) error = %v", err)
	}
	if len(client.payloads[1]) != 0 || !client.retained[1] {
		t.Error("removal did not clear the retained message")
	}
}

func TestBroadcastSink(t *testing.T) {
	hub := &mockHub{}
	sink := NewBroadcastSink(hub)
	_ = sink.Handle(context.Background(), StateUpdate{ID: "porch"})
	_ = sink.Handle(context.Background(), StateUpdate{ID: "porch", Removed: true})

	if len(hub.channels) != 2 || hub.channels[0] != EventStateChanged || hub.channels[1] != EventRemoved {
		t.Errorf("channels = %v", hub.channels)
	}
}

func TestHistoryAndTelemetrySinks_OnlyOnChange(t *testing.T) {
	db := setupTestDB(t)
	history := NewSQLiteHistoryRepository(db)
	telemetry := &mockTelemetry{}
	historySink := NewHistorySink(history)
	telemetrySink := NewTelemetrySink(telemetry)
	ctx := context.Background()

	updates := []StateUpdate{
		{ID: "porch", State: StateOn, Changed: true, Cause: CauseRestore},
		{ID: "porch", State: StateOn, Changed: false, Cause: CauseSet},
		{ID: "porch", State: StateOff, Changed: true, Cause: CauseTimer},
		{ID: "porch", Removed: true, Cause: CauseRemoved},
	}
	for _, u := range updates {
		if err := historySink.Handle(ctx, u); err != nil {
			t.Fatalf("history Handle() error = %v", err)
		}
		_ = telemetrySink.Handle(ctx, u)
	}

	entries, _ := history.GetHistory(ctx, "porch", 10)
	if len(entries) != 2 {
		t.Errorf("history entries = %d, want 2", len(entries))
	}
	if telemetry.writes != 2 || telemetry.lastOn {
		t.Errorf("telemetry writes = %d lastOn = %v, want 2/false", telemetry.writes, telemetry.lastOn)
	}
}

func TestRestoreSink(t *testing.T) {
	store := NewSQLiteRestoreStore(setupTestDB(t))
	sink := NewRestoreSink(store)
	ctx := context.Background()

	u := StateUpdate{
		ID:        "porch",
		State:     StateOn,
		Timetable: []Attribute{{"06:00:00", "on"}, {"18:00:00", "off"}},
		At:        monday0900,
	}
	if err := sink.Handle(ctx, u); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	snap, err := store.LoadSnapshot(ctx, "porch")
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(snap.Timetable) != 2 || snap.State != StateOn {
		t.Errorf("snapshot = %+v", snap)
	}

	_ = sink.Handle(ctx, StateUpdate{ID: "porch", Removed: true})
	if _, err := store.LoadSnapshot(ctx, "porch"); !errors.Is(err, ErrNotFound) {
		t.Errorf("snapshot survived removal: %v", err)
	}
}

func TestMetricsSink(t *testing.T) {
	rec := &mockRecorder{}
	sink := NewMetricsSink(rec)
	_ = sink.Handle(context.Background(), StateUpdate{ID: "porch", State: StateOn})
	_ = sink.Handle(context.Background(), StateUpdate{ID: "porch", Removed: true})

	if !rec.states["porch"] || rec.updates != 1 || len(rec.forgotten) != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}

// TestDispatcher_EndToEnd wires a timetable through the dispatcher to a sink.
func TestDispatcher_EndToEnd(t *testing.T) {
	sink := &recordingSink{name: "s"}
	d := NewDispatcher(16, nil, sink)
	d.Start()

	tt := New(Config{ID: "porch"}, Options{Timer: &manualTimer{}, Publisher: d})
	_ = tt.Start(nil)
	_ = tt.Reconfig(dayNight())
	tt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.Stop(ctx)
	if sink.count() != 2 {
		t.Errorf("delivered = %d, want 2", sink.count())
	}
}
