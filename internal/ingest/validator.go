package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/fingerprint"
)

// Validator runs the structural checks and the duplicate check. It is the
// only writer of fingerprint records.
type Validator struct {
	store fingerprint.Store
}

// NewValidator creates a validator recording fingerprints in store.
func NewValidator(store fingerprint.Store) *Validator {
	return &Validator{store: store}
}

// Validate checks the id first, then the readings.
func (v *Validator) Validate(req *Request) error {
	if !device.ValidID(req.ID) {
		return ErrInvalidID
	}
	if !v.ValidateReadings(req.Readings) {
		return ErrInvalidReadings
	}
	return nil
}

// ValidateReadings reports whether readings is present and non-empty.
// Individual elements are not inspected here; Fold drops malformed ones.
func (v *Validator) ValidateReadings(readings []json.RawMessage) bool {
	return len(readings) > 0
}

// CheckAndRecordDuplicate fingerprints raw and records it atomically.
// It returns true when raw is new and false when it was seen before.
func (v *Validator) CheckAndRecordDuplicate(ctx context.Context, raw []byte) (bool, error) {
	fresh, err := v.store.Record(ctx, fingerprint.Sum(raw))
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	return fresh, nil
}

// Release forgets raw's fingerprint so the same payload can be retried.
// Used only when the merge that followed a successful check failed.
func (v *Validator) Release(ctx context.Context, raw []byte) error {
	if err := v.store.Forget(ctx, fingerprint.Sum(raw)); err != nil {
		return fmt.Errorf("releasing fingerprint: %w", err)
	}
	return nil
}
