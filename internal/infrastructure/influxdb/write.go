package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	// MeasurementReadings is the measurement every reading is written to.
	MeasurementReadings = "device_readings"

	tagDeviceID = "device_id"
	fieldCount  = "count"
)

// WriteReading queues one reading for export. The point is stamped with
// the reading's own timestamp when it parses as RFC 3339, otherwise with
// the time of the call.
func (c *Client) WriteReading(deviceID string, count int64, timestamp string) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(ReadingPoint(deviceID, count, timestamp, time.Now()))
}

// ReadingPoint builds the point for a single reading, using fallback when
// timestamp is not a valid RFC 3339 time.
func ReadingPoint(deviceID string, count int64, timestamp string, fallback time.Time) *write.Point {
	at, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		at = fallback
	}

	return write.NewPoint(
		MeasurementReadings,
		map[string]string{tagDeviceID: deviceID},
		map[string]interface{}{fieldCount: count},
		at,
	)
}
