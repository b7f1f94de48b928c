package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes, following the Gray Logic flat scheme
// graylogic/{category}/{domain}/{id}.
const (
	TopicPrefix       = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"

	// timetableDomain is the {domain} segment for timetable topics.
	timetableDomain = "timetable"
)

// Topics provides builders for timetabled's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.TimetableState("porch")   // graylogic/core/timetable/porch/state
//	topics.TimetableCommand("porch") // graylogic/command/timetable/porch
type Topics struct{}

// TimetableState is the retained state topic of one timetable.
//
// Example: graylogic/core/timetable/porch/state
func (Topics) TimetableState(id string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefixCore, timetableDomain, id)
}

// AllTimetableStates matches every timetable state topic.
func (Topics) AllTimetableStates() string {
	return fmt.Sprintf("%s/%s/+/state", TopicPrefixCore, timetableDomain)
}

// TimetableCommand is the command topic of one timetable.
//
// Example: graylogic/command/timetable/porch
func (Topics) TimetableCommand(id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, timetableDomain, id)
}

// AllTimetableCommands matches every timetable command topic.
func (Topics) AllTimetableCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, timetableDomain)
}

// TimetableAck is where command outcomes for one timetable are published.
//
// Example: graylogic/ack/timetable/porch
func (Topics) TimetableAck(id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, timetableDomain, id)
}

// ServiceStatus is the retained online/offline status of timetabled.
//
// Example: graylogic/system/timetabled/status
func (Topics) ServiceStatus() string {
	return TopicPrefixSystem + "/timetabled/status"
}

// TimetableIDFromCommandTopic extracts the timetable ID from a command
// topic. It returns false for any other topic.
func TimetableIDFromCommandTopic(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, timetableDomain)
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
