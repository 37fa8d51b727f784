package ingest

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/nerrad567/readingd/internal/device"
)

// FoldStats describes what Fold did with one batch.
type FoldStats struct {
	// Accepted is the number of readings merged.
	Accepted int

	// Dropped is the number of malformed readings skipped, including any
	// whose count would overflow the running total.
	Dropped int

	// Sum is the total count of the accepted readings.
	Sum int64
}

// Fold merges batch into existing and returns the new aggregate. existing
// may be nil for a device seen for the first time; it is never modified.
//
// Elements without a non-empty string timestamp or a positive integral count
// are dropped, as is any reading that would push the total past MaxInt64.
// The surviving readings are prepended, in submitted order, ahead of the
// existing ones. latestReading moves only to a strictly later
// reading, so among equal timestamps the one already selected stays.
func Fold(existing *device.Device, id string, batch []json.RawMessage) (*device.Device, FoldStats) {
	var (
		stats    FoldStats
		accepted = make([]device.Reading, 0, len(batch))
		latest   *device.Reading
	)

	var base int64
	if existing != nil {
		base = existing.Count
	}

	for _, raw := range batch {
		r, ok := decodeReading(raw)
		if !ok || r.Count > math.MaxInt64-base-stats.Sum {
			stats.Dropped++
			continue
		}

		accepted = append(accepted, r)
		stats.Accepted++
		stats.Sum += r.Count

		if latest == nil || r.After(*latest) {
			rc := r
			latest = &rc
		}
	}

	if existing == nil {
		return &device.Device{
			ID:            id,
			Count:         stats.Sum,
			LatestReading: latest,
			Readings:      accepted,
		}, stats
	}

	merged := existing.DeepCopy()
	merged.ID = id
	merged.Count += stats.Sum
	merged.Readings = append(accepted, merged.Readings...)

	if latest != nil && (merged.LatestReading == nil || latest.After(*merged.LatestReading)) {
		merged.LatestReading = latest
	}

	return merged, stats
}

// decodeReading extracts a reading from one batch element. The timestamp is
// kept verbatim; the count must be a JSON number with an integral value
// greater than zero, so 2.0 and 1e1 are accepted.
func decodeReading(raw json.RawMessage) (device.Reading, bool) {
	var fields struct {
		Timestamp json.RawMessage `json:"timestamp"`
		Count     json.RawMessage `json:"count"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return device.Reading{}, false
	}

	var ts string
	if err := json.Unmarshal(fields.Timestamp, &ts); err != nil || ts == "" {
		return device.Reading{}, false
	}

	count, ok := decodeCount(fields.Count)
	if !ok {
		return device.Reading{}, false
	}

	return device.Reading{Timestamp: ts, Count: count}, true
}

func decodeCount(raw json.RawMessage) (int64, bool) {
	// json.Number also accepts quoted numbers; strings are not counts.
	if len(raw) == 0 || bytes.HasPrefix(raw, []byte(`"`)) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return 0, false
	}

	if i, err := n.Int64(); err == nil {
		return i, i > 0
	}
	f, err := n.Float64()
	// float64(MaxInt64) rounds up to 2^63, hence the strict bound.
	if err != nil || f <= 0 || f >= math.MaxInt64 || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
