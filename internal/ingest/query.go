package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/readingd/internal/device"
)

// Query serves read-only projections of device aggregates. A device that
// doesn't exist yields nil with no error; only storage failures are errors.
type Query struct {
	repo device.Repository
}

// NewQuery creates a query façade over repo.
func NewQuery(repo device.Repository) *Query {
	return &Query{repo: repo}
}

// GetByID returns the full aggregate, or nil for an unknown id.
func (q *Query) GetByID(ctx context.Context, id string) (*device.Device, error) {
	d, err := q.repo.GetByID(ctx, id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}
	return d, nil
}

// GetCount returns the running total, or nil for an unknown id.
func (q *Query) GetCount(ctx context.Context, id string) (*int64, error) {
	d, err := q.GetByID(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	count := d.Count
	return &count, nil
}

// GetLatest returns the latest reading, or nil for an unknown id or a device
// that has no accepted readings.
func (q *Query) GetLatest(ctx context.Context, id string) (*device.Reading, error) {
	d, err := q.GetByID(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	return d.LatestReading, nil
}

// GetAll returns every aggregate in first-seen order. The slice is empty,
// not nil, when there are none.
func (q *Query) GetAll(ctx context.Context) ([]device.Device, error) {
	devices, err := q.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	if devices == nil {
		devices = []device.Device{}
	}
	return devices, nil
}
