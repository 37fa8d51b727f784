package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/fingerprint"
	"github.com/nerrad567/readingd/internal/infrastructure/mqtt"
	"github.com/nerrad567/readingd/internal/ingest"
)

const (
	testID    = "36d5658a-6908-479e-887e-a949ec199272"
	testBatch = `{"id":"` + testID + `","readings":[` +
		`{"timestamp":"2021-09-29T16:08:15+01:00","count":2},` +
		`{"timestamp":"2021-09-29T16:09:15+01:00","count":15}]}`
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeMQTT struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	publishErr   error
	subscribeErr error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

// deliver simulates the broker handing payload to the subscriber of topic.
func (f *fakeMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	require.True(t, ok, "no subscriber for %s", topic)
	return handler(topic, []byte(payload))
}

func (f *fakeMQTT) messages(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func newService() *ingest.Service {
	return ingest.NewService(
		ingest.NewValidator(fingerprint.NewMemoryStore()),
		ingest.NewEngine(device.NewMemoryRepository()),
		nil,
	)
}

func startBridge(t *testing.T, client *fakeMQTT, svc *ingest.Service) *MQTTBridge {
	t.Helper()
	bridge, err := NewMQTTBridge(BridgeOptions{Client: client, Ingester: svc, QoS: 1})
	require.NoError(t, err)
	svc.AddNotifier(bridge)
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() { _ = bridge.Stop() })
	return bridge
}

func TestNewMQTTBridgeRequiresDependencies(t *testing.T) {
	_, err := NewMQTTBridge(BridgeOptions{Ingester: newService()})
	assert.Error(t, err)

	_, err = NewMQTTBridge(BridgeOptions{Client: newFakeMQTT()})
	assert.Error(t, err)
}

func TestBridgeIngestsAndPublishesDevice(t *testing.T) {
	client := newFakeMQTT()
	startBridge(t, client, newService())

	require.NoError(t, client.deliver(t, "readingd/ingest", testBatch))

	msgs := client.messages("readingd/device/" + testID)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)

	var got device.Device
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, testID, got.ID)
	assert.EqualValues(t, 17, got.Count)
	require.NotNil(t, got.LatestReading)
	assert.Equal(t, "2021-09-29T16:09:15+01:00", got.LatestReading.Timestamp)

	assert.Empty(t, client.messages("readingd/ingest/rejected"))
}

func TestBridgePublishesRejections(t *testing.T) {
	client := newFakeMQTT()
	startBridge(t, client, newService())

	require.NoError(t, client.deliver(t, "readingd/ingest", testBatch))

	bodies := []string{
		"",
		`{"id":"nope","readings":[{"timestamp":"t","count":1}]}`,
		`{"id":"` + testID + `","readings":[]}`,
		testBatch,
	}
	for _, body := range bodies {
		require.NoError(t, client.deliver(t, "readingd/ingest", body))
	}

	rejected := client.messages("readingd/ingest/rejected")
	require.Len(t, rejected, len(bodies))

	want := []string{"Invalid request", "Invalid id", "Invalid readings", "Duplicate request"}
	for i, msg := range rejected {
		var r rejection
		require.NoError(t, json.Unmarshal(msg.payload, &r))
		assert.Equal(t, want[i], r.Error)
		assert.False(t, msg.retained)
	}

	assert.Len(t, client.messages("readingd/device/"+testID), 1, "rejected batches publish no update")
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, []byte) (*device.Device, error) {
	return nil, errors.New("disk full")
}

func TestBridgeReportsInternalErrors(t *testing.T) {
	client := newFakeMQTT()
	bridge, err := NewMQTTBridge(BridgeOptions{Client: client, Ingester: failingIngester{}})
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))

	require.NoError(t, client.deliver(t, "readingd/ingest", testBatch))

	rejected := client.messages("readingd/ingest/rejected")
	require.Len(t, rejected, 1)
	assert.JSONEq(t, `{"error":"Internal error"}`, string(rejected[0].payload))
}

func TestBridgePublishFailure(t *testing.T) {
	client := newFakeMQTT()
	bridge, err := NewMQTTBridge(BridgeOptions{Client: client, Ingester: newService()})
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))

	client.publishErr = mqtt.ErrNotConnected
	err = client.deliver(t, "readingd/ingest", "{}")
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)

	err = bridge.DeviceUpdated(context.Background(), ingest.Update{Device: &device.Device{ID: testID}})
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
}

func TestBridgeStartStop(t *testing.T) {
	client := newFakeMQTT()
	bridge, err := NewMQTTBridge(BridgeOptions{Client: client, Ingester: newService()})
	require.NoError(t, err)

	assert.ErrorIs(t, bridge.Stop(), ErrNotStarted)

	client.subscribeErr = mqtt.ErrNotConnected
	assert.ErrorIs(t, bridge.Start(context.Background()), mqtt.ErrNotConnected)

	client.subscribeErr = nil
	require.NoError(t, bridge.Start(context.Background()))
	assert.Contains(t, client.handlers, "readingd/ingest")

	require.NoError(t, bridge.Stop())
	assert.NotContains(t, client.handlers, "readingd/ingest")
}

type recordedReading struct {
	id        string
	count     int64
	timestamp string
}

type fakeWriter struct {
	readings []recordedReading
}

func (w *fakeWriter) WriteReading(id string, count int64, timestamp string) {
	w.readings = append(w.readings, recordedReading{id, count, timestamp})
}

func TestInfluxExporterWritesAcceptedReadings(t *testing.T) {
	w := &fakeWriter{}
	svc := newService()
	svc.AddNotifier(NewInfluxExporter(w))
	ctx := context.Background()

	_, err := svc.Ingest(ctx, []byte(testBatch))
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, []byte(`{"id":"`+testID+`","readings":[`+
		`{"timestamp":"2021-02-29T16:08:15+01:00","count":5},{"count":3},{"timestamp":"x","count":0}]}`))
	require.NoError(t, err)

	assert.Equal(t, []recordedReading{
		{testID, 2, "2021-09-29T16:08:15+01:00"},
		{testID, 15, "2021-09-29T16:09:15+01:00"},
		{testID, 5, "2021-02-29T16:08:15+01:00"},
	}, w.readings)
}

func TestInfluxExporterIgnoresEmptyUpdates(t *testing.T) {
	w := &fakeWriter{}
	e := NewInfluxExporter(w)

	require.NoError(t, e.DeviceUpdated(context.Background(), ingest.Update{}))
	require.NoError(t, e.DeviceUpdated(context.Background(), ingest.Update{
		Device:  &device.Device{ID: testID, Readings: []device.Reading{{Timestamp: "t", Count: 1}}},
		Dropped: 2,
	}))
	assert.Empty(t, w.readings)
}

func TestBridgeRetainedUpdatesFollowMergeOrder(t *testing.T) {
	client := newFakeMQTT()
	startBridge(t, client, newService())
	client.mu.Lock()
	handler := client.handlers["readingd/ingest"]
	client.mu.Unlock()
	require.NotNil(t, handler)

	const batches = 30
	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"id":"%s","readings":[{"timestamp":"2021-09-29T16:%02d:00Z","count":1}]}`, testID, i)
			assert.NoError(t, handler("readingd/ingest", []byte(body)))
		}()
	}
	wg.Wait()

	msgs := client.messages("readingd/device/" + testID)
	require.Len(t, msgs, batches)
	for i, m := range msgs {
		var d device.Device
		require.NoError(t, json.Unmarshal(m.payload, &d))
		assert.Equal(t, int64(i+1), d.Count, "publish %d", i)
	}
}
