package timetable

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Command actions accepted on the bus.
const (
	ActionSet      = "set"
	ActionUnset    = "unset"
	ActionReset    = "reset"
	ActionReconfig = "reconfig"
)

// CommandMessage is a mutation request received on the command topic of a
// timetable:
//
//	{"id": "c-17", "action": "set", "time": "07:30", "state": "on"}
//	{"action": "reconfig", "timetable": [{"time": "06:00", "state": "on"}]}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment. Optional.
	ID string `json:"id,omitempty"`

	Action    string      `json:"action"`
	Time      string      `json:"time,omitempty"`
	State     string      `json:"state,omitempty"`
	Timetable []Attribute `json:"timetable,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was applied.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected; Error says why.
	AckFailed AckStatus = "failed"
)

// Acknowledgment error codes.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeTimeNotFound      = "TIME_NOT_FOUND"
	ErrCodeUnavailable       = "UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// AckMessage reports the outcome of a command on the ack topic.
type AckMessage struct {
	CommandID   string       `json:"command_id,omitempty"`
	TimetableID string       `json:"timetable_id"`
	Action      string       `json:"action"`
	Status      AckStatus    `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	Result      *StateUpdate `json:"result,omitempty"`
	Error       *AckError    `json:"error,omitempty"`
}

// AckError contains error details for a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Mutator is the write surface of a Registry used by commands.
type Mutator interface {
	Set(id string, at TimeOfDay, state State) (StateUpdate, error)
	Unset(id string, at TimeOfDay) (StateUpdate, error)
	Reset(id string) (StateUpdate, error)
	Reconfig(id string, events []Event) (StateUpdate, error)
}

// CommandHandler applies bus commands to timetables and publishes the
// acknowledgments.
type CommandHandler struct {
	registry Mutator
	bus      MQTTClient
	ackTopic func(id string) string
	qos      byte
	logger   Logger
}

// NewCommandHandler creates a handler acknowledging on ackTopic(id).
func NewCommandHandler(registry Mutator, bus MQTTClient, ackTopic func(id string) string, qos byte, logger Logger) *CommandHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandHandler{
		registry: registry,
		bus:      bus,
		ackTopic: ackTopic,
		qos:      qos,
		logger:   logger,
	}
}

// HandleMessage decodes and executes one command for timetable id, then
// publishes the acknowledgment. The returned error is the publish error
// only; rejected commands are reported in the ack.
func (h *CommandHandler) HandleMessage(id string, payload []byte) error {
	var cmd CommandMessage
	var (
		result StateUpdate
		err    error
	)
	if decodeErr := json.Unmarshal(payload, &cmd); decodeErr != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, decodeErr)
	} else {
		h.logger.Debug("received timetable command",
			"timetable_id", id,
			"command_id", cmd.ID,
			"action", cmd.Action,
		)
		result, err = h.Execute(id, cmd)
	}

	ack := AckMessage{
		CommandID:   cmd.ID,
		TimetableID: id,
		Action:      cmd.Action,
		Status:      AckAccepted,
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		h.logger.Warn("timetable command rejected",
			"timetable_id", id,
			"command_id", cmd.ID,
			"action", cmd.Action,
			"error", err,
		)
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	} else {
		ack.Result = &result
	}

	data, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("marshalling ack: %w", err)
	}
	if err := h.bus.Publish(h.ackTopic(id), data, h.qos, false); err != nil {
		return fmt.Errorf("publishing ack: %w", err)
	}
	return nil
}

// Execute validates cmd and routes it to the registry.
func (h *CommandHandler) Execute(id string, cmd CommandMessage) (StateUpdate, error) {
	switch cmd.Action {
	case ActionSet:
		at, err := requireTime(cmd.Time)
		if err != nil {
			return StateUpdate{}, err
		}
		if cmd.State == "" {
			return StateUpdate{}, fmt.Errorf("%w: state is required", ErrInvalidCommand)
		}
		state, err := ParseState(cmd.State)
		if err != nil {
			return StateUpdate{}, err
		}
		return h.registry.Set(id, at, state)

	case ActionUnset:
		at, err := requireTime(cmd.Time)
		if err != nil {
			return StateUpdate{}, err
		}
		return h.registry.Unset(id, at)

	case ActionReset:
		return h.registry.Reset(id)

	case ActionReconfig:
		if cmd.Timetable == nil {
			return StateUpdate{}, fmt.Errorf("%w: timetable is required", ErrInvalidCommand)
		}
		events, err := ParseAttributes(cmd.Timetable)
		if err != nil {
			return StateUpdate{}, err
		}
		return h.registry.Reconfig(id, events)

	case "":
		return StateUpdate{}, fmt.Errorf("%w: action is required", ErrInvalidCommand)
	default:
		return StateUpdate{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}

func requireTime(value string) (TimeOfDay, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: time is required", ErrInvalidCommand)
	}
	return ParseTimeOfDay(value)
}

// ErrorCode maps an operation error to an acknowledgment code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrTimeNotFound):
		return ErrCodeTimeNotFound
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrMalformedTime), errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateTime):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrClosed):
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}
