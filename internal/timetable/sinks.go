package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WebSocket event types broadcast by BroadcastSink.
const (
	EventStateChanged = "timetable.state_changed"
	EventRemoved      = "timetable.removed"
)

// ─── Restore ───────────────────────────────────────────────────────

// RestoreSink keeps the restart snapshot of every timetable current.
type RestoreSink struct {
	store RestoreStore
}

// NewRestoreSink creates a sink writing to store.
func NewRestoreSink(store RestoreStore) *RestoreSink {
	return &RestoreSink{store: store}
}

// Name implements Sink.
func (s *RestoreSink) Name() string { return "restore" }

// Handle implements Sink.
func (s *RestoreSink) Handle(ctx context.Context, u StateUpdate) error {
	if u.Removed {
		return s.store.DeleteSnapshot(ctx, u.ID)
	}
	return s.store.SaveSnapshot(ctx, RestoreSnapshot{
		ID:        u.ID,
		State:     u.State,
		Timetable: u.Timetable,
		UpdatedAt: u.At,
	})
}

// ─── History ───────────────────────────────────────────────────────

// HistoryRecorder is the write half of HistoryRepository.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, id string, state State, cause Cause) error
}

// HistorySink records every state change.
type HistorySink struct {
	history HistoryRecorder
}

// NewHistorySink creates a sink recording into history.
func NewHistorySink(history HistoryRecorder) *HistorySink {
	return &HistorySink{history: history}
}

// Name implements Sink.
func (s *HistorySink) Name() string { return "history" }

// Handle implements Sink.
func (s *HistorySink) Handle(ctx context.Context, u StateUpdate) error {
	if u.Removed || !u.Changed {
		return nil
	}
	return s.history.RecordStateChange(ctx, u.ID, u.State, u.Cause)
}

// ─── MQTT ──────────────────────────────────────────────────────────

// MQTTClient is the interface for publishing state to the bus.
type MQTTClient interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes each update as a retained JSON message.
type MQTTSink struct {
	client   MQTTClient
	topicFor func(id string) string
	qos      byte
}

// NewMQTTSink creates a sink publishing to topicFor(id).
func NewMQTTSink(client MQTTClient, topicFor func(id string) string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topicFor: topicFor, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink. A removal clears the retained message.
func (s *MQTTSink) Handle(_ context.Context, u StateUpdate) error {
	topic := s.topicFor(u.ID)
	if u.Removed {
		return s.client.Publish(topic, nil, s.qos, true)
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshalling state update: %w", err)
	}
	return s.client.Publish(topic, payload, s.qos, true)
}

// ─── WebSocket ─────────────────────────────────────────────────────

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// BroadcastSink relays updates to WebSocket clients.
type BroadcastSink struct {
	hub WSHub
}

// NewBroadcastSink creates a sink broadcasting on hub.
func NewBroadcastSink(hub WSHub) *BroadcastSink {
	return &BroadcastSink{hub: hub}
}

// Name implements Sink.
func (s *BroadcastSink) Name() string { return "websocket" }

// Handle implements Sink.
func (s *BroadcastSink) Handle(_ context.Context, u StateUpdate) error {
	if u.Removed {
		s.hub.Broadcast(EventRemoved, map[string]string{"id": u.ID})
		return nil
	}
	s.hub.Broadcast(EventStateChanged, u)
	return nil
}

// ─── Telemetry ─────────────────────────────────────────────────────

// TelemetryWriter writes state transitions to a time-series store.
type TelemetryWriter interface {
	WriteTimetableState(id, name string, on bool, cause string, at time.Time)
}

// TelemetrySink writes a point for every state change.
type TelemetrySink struct {
	writer TelemetryWriter
}

// NewTelemetrySink creates a sink writing to writer.
func NewTelemetrySink(writer TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{writer: writer}
}

// Name implements Sink.
func (s *TelemetrySink) Name() string { return "telemetry" }

// Handle implements Sink.
func (s *TelemetrySink) Handle(_ context.Context, u StateUpdate) error {
	if u.Removed || !u.Changed {
		return nil
	}
	s.writer.WriteTimetableState(u.ID, u.Name, bool(u.State), string(u.Cause), u.At)
	return nil
}

// ─── Metrics ───────────────────────────────────────────────────────

// MetricsRecorder receives per-timetable gauges and counters.
type MetricsRecorder interface {
	SetState(id string, on bool, events int)
	SetNextTransition(id string, at *time.Time)
	RecordUpdate(id, cause string, changed bool)
	Forget(id string)
}

// MetricsSink exports timetable state as metrics.
type MetricsSink struct {
	recorder MetricsRecorder
}

// NewMetricsSink creates a sink feeding recorder.
func NewMetricsSink(recorder MetricsRecorder) *MetricsSink {
	return &MetricsSink{recorder: recorder}
}

// Name implements Sink.
func (s *MetricsSink) Name() string { return "metrics" }

// Handle implements Sink.
func (s *MetricsSink) Handle(_ context.Context, u StateUpdate) error {
	if u.Removed {
		s.recorder.Forget(u.ID)
		return nil
	}
	s.recorder.SetState(u.ID, bool(u.State), len(u.Timetable))
	s.recorder.SetNextTransition(u.ID, u.NextTransition)
	s.recorder.RecordUpdate(u.ID, string(u.Cause), u.Changed)
	return nil
}
