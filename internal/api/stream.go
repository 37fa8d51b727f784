package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
	"github.com/nerrad567/readingd/internal/ingest"
)

// Stream frame types.
const (
	FrameFollow   = "follow"
	FrameUnfollow = "unfollow"
	FramePing     = "ping"
	FramePong     = "pong"
	FrameEvent    = "event"
	FrameAck      = "ack"
	FrameError    = "error"

	// EventDeviceUpdated is pushed after every successful merge.
	EventDeviceUpdated = "device.updated"

	streamBufferSize = 256
)

// Frame is one JSON message on the device stream, in either direction.
type Frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Time  string          `json:"time,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// FollowRequest is the data of follow and unfollow frames. All switches
// the every-device feed on (follow) or off (unfollow).
type FollowRequest struct {
	All     bool     `json:"all,omitempty"`
	Devices []string `json:"devices,omitempty"`
}

// DeviceUpdatedEvent is the data of a device.updated event.
type DeviceUpdatedEvent struct {
	Device   *device.Device `json:"device"`
	Accepted int            `json:"accepted"`
	Dropped  int            `json:"dropped"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already filtered the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans device updates out to stream clients. It implements
// ingest.Notifier.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.detach()
	}
}

// ClientCount returns the number of connected stream clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.detach()
	h.logger.Debug("stream client disconnected", "clients", n)
}

// DeviceUpdated pushes a device.updated event to every client following
// the device.
func (h *Hub) DeviceUpdated(_ context.Context, u ingest.Update) error {
	if u.Device == nil {
		return nil
	}

	frame, err := eventFrame(EventDeviceUpdated, DeviceUpdatedEvent{
		Device:   u.Device,
		Accepted: u.Accepted,
		Dropped:  u.Dropped,
	})
	if err != nil {
		h.logger.Error("encoding stream event failed", "device_id", u.Device.ID, "error", err)
		return nil
	}

	h.mu.RLock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.follows(u.Device.ID) && c.enqueue(frame) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("device update streamed", "device_id", u.Device.ID, "clients", delivered)
	}
	return nil
}

func eventFrame(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: FrameEvent, Event: event, Time: now(), Data: data})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// streamClient is one WebSocket connection. A client follows every device
// (all) and/or an explicit set of device ids.
type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	all     bool
	devices map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newStreamClient(hub *Hub, conn *websocket.Conn) *streamClient {
	return &streamClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, streamBufferSize),
		devices: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// handleWebSocket upgrades the connection. Without ?device=<id> the client
// follows every device.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	only := r.URL.Query().Get("device")
	if only != "" && !device.ValidID(only) {
		writeBadRequest(w, ingest.MessageInvalidID)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newStreamClient(s.hub, conn)
	if only == "" {
		c.all = true
	} else {
		c.devices[only] = struct{}{}
	}
	s.hub.attach(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// detach stops the write loop and closes the connection. Safe to call more
// than once.
func (c *streamClient) detach() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // Already tearing down
		}
	})
}

func (c *streamClient) follows(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.devices[id]
	return ok
}

// enqueue queues frame without blocking. A full buffer (slow reader) or a
// detached client drops it.
func (c *streamClient) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *streamClient) readLoop(cfg config.WebSocketConfig) {
	defer c.hub.remove(c)

	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // A failed deadline surfaces as a read error
		c.handleFrame(data)
	}
}

func (c *streamClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := write(websocket.TextMessage, frame); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

func (c *streamClient) handleFrame(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply("", FrameError, map[string]string{"message": "invalid JSON frame"})
		return
	}

	switch in.Type {
	case FrameFollow, FrameUnfollow:
		c.handleFollow(in)
	case FramePing:
		c.reply(in.ID, FramePong, nil)
	default:
		c.reply(in.ID, FrameError, map[string]string{"message": "unknown frame type: " + in.Type})
	}
}

// handleFollow applies a follow or unfollow frame. Any invalid id rejects
// the whole frame.
func (c *streamClient) handleFollow(in Frame) {
	var req FollowRequest
	if len(in.Data) == 0 || json.Unmarshal(in.Data, &req) != nil {
		c.reply(in.ID, FrameError, map[string]string{"message": "invalid " + in.Type + " data"})
		return
	}
	for _, id := range req.Devices {
		if !device.ValidID(id) {
			c.reply(in.ID, FrameError, map[string]string{"message": ingest.MessageInvalidID})
			return
		}
	}

	follow := in.Type == FrameFollow
	c.mu.Lock()
	if req.All {
		c.all = follow
	}
	for _, id := range req.Devices {
		if follow {
			c.devices[id] = struct{}{}
		} else {
			delete(c.devices, id)
		}
	}
	c.mu.Unlock()

	c.reply(in.ID, FrameAck, req)
}

func (c *streamClient) reply(id, frameType string, v any) {
	out := Frame{Type: frameType, ID: id, Time: now()}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		out.Data = data
	}
	frame, err := json.Marshal(out)
	if err != nil {
		return
	}
	c.enqueue(frame)
}
