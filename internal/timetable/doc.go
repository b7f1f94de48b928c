// Package timetable implements day-cyclic ON/OFF timetables.
//
// A timetable is a sorted list of (time of day, state) transition events
// that repeats every day. The state at any instant is the state of the most
// recent event at or before that time of day; before the first event the
// last event's state carries over from the previous day. An empty timetable
// is off all day.
//
// # Components
//
//   - Table: the pure event list with StateAt and NextTransition
//   - Timetable: binds a Table to a clock and a one-shot Timer, keeping a
//     single timer armed for the next transition and publishing a
//     StateUpdate after every change
//   - Registry: owns the timetables declared in the configuration file
//     (read-only) and those created through the API (stored in SQLite)
//   - Dispatcher: a non-blocking Publisher fanning updates out to Sinks
//     (restore snapshots, history, MQTT, WebSocket, InfluxDB, metrics)
//
// # Thread Safety
//
// Timetable, Registry and Dispatcher are safe for concurrent use. Table is
// not; Timetable serialises access to it.
package timetable
