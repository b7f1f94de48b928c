// Package mqtt provides MQTT connectivity for timetabled.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained timetable state publishing
//   - Subscriptions to timetable command topics
//   - Last Will and Testament on the service status topic
//
// # Topics
//
//	graylogic/core/timetable/{id}/state   retained StateUpdate JSON
//	graylogic/command/timetable/{id}      {"action": "set", "time": "06:30", "state": "on"}
//	graylogic/ack/timetable/{id}          command outcome
//	graylogic/system/timetabled/status    retained online/offline
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTimetableCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//
// Use TLS (mqtt.broker.tls) outside development; payloads are not
// encrypted beyond the transport.
package mqtt
