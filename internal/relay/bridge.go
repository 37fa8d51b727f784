package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/infrastructure/mqtt"
	"github.com/nerrad567/readingd/internal/ingest"
)

// ingestTimeout bounds one bus-delivered batch end to end.
const ingestTimeout = 10 * time.Second

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("relay: bridge not started")

// MQTTClient is the subset of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Ingester runs a raw request body through validation, dedup and merge.
// Satisfied by *ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte) (*device.Device, error)
}

// BridgeOptions holds the bridge's dependencies.
type BridgeOptions struct {
	Client   MQTTClient
	Ingester Ingester
	QoS      byte
	Logger   Logger
}

// MQTTBridge is the bus-facing side of ingestion.
//
// Thread Safety: all methods are safe for concurrent use.
type MQTTBridge struct {
	client   MQTTClient
	ingester Ingester
	qos      byte
	topics   mqtt.Topics
	logger   Logger

	mu        sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc
}

type rejection struct {
	Error string `json:"error"`
}

// NewMQTTBridge validates opts and creates a bridge. Call Start to subscribe.
func NewMQTTBridge(opts BridgeOptions) (*MQTTBridge, error) {
	if opts.Client == nil {
		return nil, errors.New("relay: mqtt client is required")
	}
	if opts.Ingester == nil {
		return nil, errors.New("relay: ingester is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTBridge{
		client:   opts.Client,
		ingester: opts.Ingester,
		qos:      opts.QoS,
		logger:   logger,
	}, nil
}

// Start subscribes to the ingest topic. Batches in flight are cancelled
// when ctx is done or Stop is called.
func (b *MQTTBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx, b.ctxCancel = context.WithCancel(ctx)
	b.mu.Unlock()

	topic := b.topics.Ingest()
	if err := b.client.Subscribe(topic, b.qos, b.handleIngest); err != nil {
		b.ctxCancel()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	b.logger.Info("mqtt ingest bridge started", "topic", topic)
	return nil
}

// Stop unsubscribes and cancels in-flight batches.
func (b *MQTTBridge) Stop() error {
	b.mu.Lock()
	cancel := b.ctxCancel
	b.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	if err := b.client.Unsubscribe(b.topics.Ingest()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("unsubscribing from %s: %w", b.topics.Ingest(), err)
	}
	return nil
}

func (b *MQTTBridge) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// handleIngest processes one bus-delivered request body. Successful merges
// are published through DeviceUpdated by the service's notifier chain.
func (b *MQTTBridge) handleIngest(_ string, payload []byte) error {
	ctx, cancel := context.WithTimeout(b.baseContext(), ingestTimeout)
	defer cancel()

	_, err := b.ingester.Ingest(ctx, payload)
	if err == nil {
		return nil
	}

	if !ingest.IsRejection(err) {
		b.logger.Error("mqtt ingest failed", "error", err)
	} else {
		b.logger.Debug("mqtt ingest rejected", "error", err)
	}

	body, mErr := json.Marshal(rejection{Error: ingest.RejectionMessage(err)})
	if mErr != nil {
		return fmt.Errorf("encoding rejection: %w", mErr)
	}
	if pErr := b.client.Publish(b.topics.IngestRejected(), body, b.qos, false); pErr != nil {
		return fmt.Errorf("publishing rejection: %w", pErr)
	}
	return nil
}

// DeviceUpdated publishes the merged aggregate, retained, so late
// subscribers see the current state of every device. The service calls it
// under the device lock, so retained messages for one device are published
// in merge order.
func (b *MQTTBridge) DeviceUpdated(_ context.Context, u ingest.Update) error {
	if u.Device == nil {
		return nil
	}
	body, err := json.Marshal(u.Device)
	if err != nil {
		return fmt.Errorf("encoding device %s: %w", u.Device.ID, err)
	}
	if err := b.client.Publish(b.topics.Device(u.Device.ID), body, b.qos, true); err != nil {
		return fmt.Errorf("publishing device %s: %w", u.Device.ID, err)
	}
	return nil
}
