package ingest

import (
	"context"

	"github.com/nerrad567/readingd/internal/device"
)

// Update describes one successful merge.
type Update struct {
	Device   *device.Device
	Accepted int
	Dropped  int
}

// Notifier observes successful merges. Implementations must not block for
// long: they run on the ingesting request's goroutine.
type Notifier interface {
	DeviceUpdated(ctx context.Context, u Update) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, u Update) error

func (f NotifierFunc) DeviceUpdated(ctx context.Context, u Update) error {
	return f(ctx, u)
}
