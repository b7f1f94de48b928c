package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/scheduler"
	"github.com/nerrad567/gray-logic-timetable/internal/timetable"
)

// schedulerTimer adapts the gocron scheduler to timetable.Timer. The
// difference is the return type of the one-shot:
// - scheduler: *scheduler.OneShot
// - timetable expects: timetable.TimerHandle
type schedulerTimer struct {
	scheduler *scheduler.Scheduler
}

// ArmOnce implements timetable.Timer.
func (t schedulerTimer) ArmOnce(at time.Time, fn func()) (timetable.TimerHandle, error) {
	job, err := t.scheduler.Once(at, fn)
	if err != nil {
		// Return an untyped nil so callers can compare the handle to nil
		return nil, err
	}
	return job, nil
}

// commandExecutor is the part of timetable.CommandHandler used here.
type commandExecutor interface {
	HandleMessage(id string, payload []byte) error
}

// mqttCommandAdapter adapts timetable.CommandHandler to the infrastructure
// MQTT client's MessageHandler. The bus delivers the full topic; the
// handler expects the timetable ID.
type mqttCommandAdapter struct {
	handler commandExecutor
}

// handle implements mqtt.MessageHandler.
func (a *mqttCommandAdapter) handle(topic string, payload []byte) error {
	id, ok := mqtt.TimetableIDFromCommandTopic(topic)
	if !ok {
		return fmt.Errorf("not a timetable command topic: %s", topic)
	}
	return a.handler.HandleMessage(id, payload)
}
