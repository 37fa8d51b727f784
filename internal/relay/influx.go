package relay

import (
	"context"

	"github.com/nerrad567/readingd/internal/ingest"
)

// ReadingWriter queues a reading for time-series export.
// Satisfied by *influxdb.Client.
type ReadingWriter interface {
	WriteReading(deviceID string, count int64, timestamp string)
}

// InfluxExporter writes each merge's accepted readings to a ReadingWriter.
type InfluxExporter struct {
	writer ReadingWriter
}

// NewInfluxExporter creates an exporter backed by w.
func NewInfluxExporter(w ReadingWriter) *InfluxExporter {
	return &InfluxExporter{writer: w}
}

// DeviceUpdated exports the readings added by the merge described by u.
// Merges prepend their accepted readings, so they are the first
// u.Accepted entries of the aggregate.
func (e *InfluxExporter) DeviceUpdated(_ context.Context, u ingest.Update) error {
	if u.Device == nil || u.Accepted <= 0 {
		return nil
	}
	n := min(u.Accepted, len(u.Device.Readings))
	for _, r := range u.Device.Readings[:n] {
		e.writer.WriteReading(u.Device.ID, r.Count, r.Timestamp)
	}
	return nil
}
