package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/readingd/internal/device"
)

// Engine is the only writer of device aggregates. Merges for one device id
// are serialised; merges for different ids run in parallel.
type Engine struct {
	repo  device.Repository
	locks *keyLock
}

// NewEngine creates an engine writing to repo.
func NewEngine(repo device.Repository) *Engine {
	return &Engine{repo: repo, locks: newKeyLock()}
}

// MergeBatch folds batch into the aggregate for id and persists it.
func (e *Engine) MergeBatch(ctx context.Context, id string, batch []json.RawMessage) (*device.Device, FoldStats, error) {
	return e.MergeBatchFunc(ctx, id, batch, nil)
}

// MergeBatchFunc is MergeBatch with a hook. committed, when non-nil, runs
// after the save while the device lock is still held, so successive calls
// for one id observe successive aggregates.
//
// The returned device is re-read from the repository after saving; if that
// read fails the merge is still committed and the folded aggregate is
// returned. Nothing is written when an error is returned.
func (e *Engine) MergeBatchFunc(
	ctx context.Context,
	id string,
	batch []json.RawMessage,
	committed func(*device.Device, FoldStats),
) (*device.Device, FoldStats, error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, FoldStats{}, fmt.Errorf("waiting for device lock: %w", err)
	}
	defer unlock()

	existing, err := e.repo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		return nil, FoldStats{}, fmt.Errorf("loading device: %w", err)
	}

	merged, stats := Fold(existing, id, batch)

	if err := e.repo.Save(ctx, merged); err != nil {
		return nil, stats, fmt.Errorf("saving device: %w", err)
	}

	saved, err := e.repo.GetByID(context.WithoutCancel(ctx), id)
	if err != nil {
		saved = merged
	}

	if committed != nil {
		committed(saved, stats)
	}
	return saved, stats, nil
}
