package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/readingd/internal/device"
)

// Service runs the full ingestion pipeline for one raw request body.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	validator *Validator
	engine    *Engine
	metrics   *Metrics
	logger    Logger

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewService wires a validator and engine together. A nil metrics value
// registers fresh metrics on a private registry.
func NewService(validator *Validator, engine *Engine, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Service{
		validator: validator,
		engine:    engine,
		metrics:   metrics,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// AddNotifier registers n to observe every successful merge.
func (s *Service) AddNotifier(n Notifier) {
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.mu.Unlock()
}

// Ingest validates raw, rejects it if the exact bytes were accepted before,
// and merges its readings into the device aggregate.
//
// Rejections are returned as ErrInvalidRequest, ErrInvalidID,
// ErrInvalidReadings or ErrDuplicateRequest. Any other error is a storage
// failure; in that case nothing was merged and the fingerprint is released.
//
// Notifiers run before Ingest returns, while the device lock is held, so
// they see updates for one device in merge order and must not block for
// long.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*device.Device, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		s.metrics.ObserveBatch(OutcomeInvalid)
		return nil, err
	}

	if err := s.validator.Validate(req); err != nil {
		s.metrics.ObserveBatch(OutcomeInvalid)
		return nil, err
	}

	fresh, err := s.validator.CheckAndRecordDuplicate(ctx, raw)
	if err != nil {
		s.metrics.ObserveBatch(OutcomeError)
		return nil, err
	}
	if !fresh {
		s.metrics.ObserveBatch(OutcomeDuplicate)
		return nil, ErrDuplicateRequest
	}

	start := time.Now()
	merged, stats, err := s.engine.MergeBatchFunc(ctx, req.ID, req.Readings,
		func(d *device.Device, st FoldStats) {
			s.notify(ctx, Update{Device: d, Accepted: st.Accepted, Dropped: st.Dropped})
		})
	if err != nil {
		s.metrics.ObserveBatch(OutcomeError)
		// ctx may already be cancelled; the release must still happen.
		if relErr := s.validator.Release(context.WithoutCancel(ctx), raw); relErr != nil {
			s.logger.Error("releasing fingerprint after failed merge",
				"device_id", req.ID, "error", relErr)
		}
		return nil, err
	}

	s.metrics.ObserveBatch(OutcomeAccepted)
	s.metrics.ObserveMerge(start, stats)

	if stats.Dropped > 0 {
		s.logger.Debug("dropped malformed readings",
			"device_id", req.ID, "dropped", stats.Dropped, "accepted", stats.Accepted)
	}

	return merged, nil
}

func (s *Service) notify(ctx context.Context, u Update) {
	s.mu.RLock()
	notifiers := s.notifiers
	s.mu.RUnlock()

	for _, n := range notifiers {
		if err := n.DeviceUpdated(ctx, u); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("device update notification failed",
				"device_id", u.Device.ID, "error", err)
		}
	}
}
