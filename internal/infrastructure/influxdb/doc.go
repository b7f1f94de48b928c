// Package influxdb records timetable state changes in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each state change
// becomes one point in the timetable_state measurement, which gives a
// long-term on/off history beyond the local SQLite retention window.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTimetableState("porch", "Porch Light", true, "timer", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch errors are delivered through SetOnError.
package influxdb
