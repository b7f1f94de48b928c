package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTimetableState is the measurement written for every timetable
// state change.
const MeasurementTimetableState = "timetable_state"

// WriteTimetableState records a timetable state change.
//
// Tags are timetable_id and cause. Fields are state (1 for on, 0 for off,
// so it graphs as a step line), on and name. The write is non-blocking.
//
// Example:
//
//	client.WriteTimetableState("porch", "Porch Light", true, "timer", time.Now())
func (c *Client) WriteTimetableState(id, name string, on bool, cause string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	state := 0
	if on {
		state = 1
	}
	point := write.NewPoint(
		MeasurementTimetableState,
		map[string]string{
			"timetable_id": id,
			"cause":        cause,
		},
		map[string]interface{}{
			"state": state,
			"on":    on,
			"name":  name,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}
