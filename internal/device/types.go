package device

import (
	"encoding/json"
	"strings"
	"time"
)

// Reading is a single timestamped counter observation.
// Timestamp is kept exactly as submitted.
type Reading struct {
	Timestamp string `json:"timestamp"`
	Count     int64  `json:"count"`
}

// After reports whether r is strictly later than other.
func (r Reading) After(other Reading) bool {
	return CompareTimestamps(r.Timestamp, other.Timestamp) > 0
}

// CompareTimestamps orders two reading timestamps, returning -1, 0 or +1.
//
// Each timestamp is mapped to a sort key and the keys are compared as
// strings. A timestamp that parses as RFC 3339 becomes its instant in UTC
// with fixed-width nanoseconds, so offsets are honoured; anything else is
// its raw text. One key per timestamp keeps the order transitive when
// parseable and unparseable timestamps are mixed.
func CompareTimestamps(a, b string) int {
	return strings.Compare(timestampKey(a), timestampKey(b))
}

const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

func timestampKey(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(sortKeyLayout)
}

// Device is the running aggregate for one device.
//
// Count is the sum of every accepted reading's count. LatestReading is the
// accepted reading with the greatest timestamp. Readings holds every accepted
// reading, newest batch first and each batch in submitted order.
type Device struct {
	ID            string    `json:"id"`
	Count         int64     `json:"count"`
	LatestReading *Reading  `json:"latestReading,omitempty"`
	Readings      []Reading `json:"readings"`
}

// MarshalJSON always encodes readings as an array, never null.
func (d Device) MarshalJSON() ([]byte, error) {
	type plain Device
	p := plain(d)
	if p.Readings == nil {
		p.Readings = []Reading{}
	}
	return json.Marshal(p)
}

// DeepCopy returns a copy sharing no memory with d.
// Returns nil for a nil receiver.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.LatestReading != nil {
		latest := *d.LatestReading
		cpy.LatestReading = &latest
	}

	if d.Readings != nil {
		cpy.Readings = make([]Reading, len(d.Readings))
		copy(cpy.Readings, d.Readings)
	}

	return &cpy
}
