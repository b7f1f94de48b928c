package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-timetable/internal/timetable"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// wsQueueSize is the number of outbound messages buffered per subscriber.
	wsQueueSize = 256

	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
	defaultWSMaxMessageSize = 8192
)

// wsChannels lists the channels a client may subscribe to.
var wsChannels = []string{timetable.EventStateChanged, timetable.EventRemoved}

// WSMessage is the envelope of every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is a frame received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are checked by corsMiddleware.
		return true
	},
}

// wsTimings holds the connection limits derived from WebSocketConfig.
type wsTimings struct {
	ping     time.Duration
	pong     time.Duration
	maxBytes int64
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	t := wsTimings{
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pong:     time.Duration(cfg.PongTimeout) * time.Second,
		maxBytes: int64(cfg.MaxMessageSize),
	}
	if t.ping <= 0 {
		t.ping = defaultWSPingInterval
	}
	if t.pong <= 0 {
		t.pong = defaultWSPongTimeout
	}
	if t.maxBytes <= 0 {
		t.maxBytes = defaultWSMaxMessageSize
	}
	return t
}

// Hub fans timetable updates out to WebSocket subscribers.
// It implements timetable.WSHub.
type Hub struct {
	timings wsTimings
	logger  *logging.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub with no subscribers.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		timings: newWSTimings(cfg),
		logger:  logger,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Broadcast queues an event for every subscriber of channel. Subscribers
// whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeWS(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.wants(channel) && !sub.queue(data) {
			h.logger.Debug("websocket subscriber lagging, event dropped", "channel", channel)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subscribers", n)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()
	sub.close()
	h.logger.Debug("websocket client disconnected", "subscribers", n)
}

// subscriber is one WebSocket client. Its outbound queue is closed exactly
// once, after which queue reports false.
type subscriber struct {
	conn     *websocket.Conn
	snapshot func() []timetable.StateUpdate

	mu       sync.Mutex
	out      chan []byte
	closed   bool
	channels map[string]struct{}
}

func newSubscriber(conn *websocket.Conn, snapshot func() []timetable.StateUpdate) *subscriber {
	return &subscriber{
		conn:     conn,
		snapshot: snapshot,
		out:      make(chan []byte, wsQueueSize),
		channels: make(map[string]struct{}),
	}
}

func (s *subscriber) queue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *subscriber) reply(id, msgType string, payload any) {
	data, err := encodeWS(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	s.queue(data)
}

func (s *subscriber) fail(id, message string) {
	s.reply(id, WSTypeError, map[string]string{"message": message})
}

// handleWebSocket upgrades the connection and serves one subscriber.
// The stream carries the same data as the read endpoints, so no token is
// required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn, s.registry.List)
	s.hub.add(sub)

	go s.hub.writeLoop(sub)
	go s.hub.readLoop(sub)
}

// readLoop handles client requests until the connection fails or the
// client stops answering pings.
func (h *Hub) readLoop(sub *subscriber) {
	defer func() {
		h.remove(sub)
		_ = sub.conn.Close()
	}()

	deadline := func() error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.timings.ping + h.timings.pong))
	}
	sub.conn.SetReadLimit(h.timings.maxBytes)
	_ = deadline()
	sub.conn.SetPongHandler(func(string) error { return deadline() })

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = deadline()
		h.handleRequest(sub, data)
	}
}

// writeLoop sends queued frames and keepalive pings. It exits when the
// queue is closed or a write fails.
func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.timings.ping)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(h.timings.pong))
		return sub.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-sub.out:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleRequest(sub *subscriber, data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sub.fail("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		h.subscribe(sub, req)
	case WSTypeUnsubscribe:
		h.unsubscribe(sub, req)
	case WSTypePing:
		sub.reply(req.ID, WSTypePong, nil)
	default:
		sub.fail(req.ID, "unknown message type: "+req.Type)
	}
}

// subscribe adds channels. Joining the state channel is answered with one
// event per timetable carrying its current state.
func (h *Hub) subscribe(sub *subscriber, req wsRequest) {
	channels, ok := parseChannels(req.Payload)
	if !ok {
		sub.fail(req.ID, "invalid subscribe payload")
		return
	}
	for _, ch := range channels {
		if !slices.Contains(wsChannels, ch) {
			sub.fail(req.ID, "unknown channel: "+ch)
			return
		}
	}

	sub.mu.Lock()
	_, hadState := sub.channels[timetable.EventStateChanged]
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}
	_, hasState := sub.channels[timetable.EventStateChanged]
	sub.mu.Unlock()

	sub.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	if hasState && !hadState && sub.snapshot != nil {
		for _, u := range sub.snapshot() {
			data, err := encodeWS(WSMessage{Type: WSTypeEvent, EventType: timetable.EventStateChanged, Payload: u})
			if err != nil {
				h.logger.Error("failed to encode timetable snapshot", "timetable_id", u.ID, "error", err)
				continue
			}
			sub.queue(data)
		}
	}
}

func (h *Hub) unsubscribe(sub *subscriber, req wsRequest) {
	channels, ok := parseChannels(req.Payload)
	if !ok {
		sub.fail(req.ID, "invalid unsubscribe payload")
		return
	}

	sub.mu.Lock()
	for _, ch := range channels {
		delete(sub.channels, ch)
	}
	sub.mu.Unlock()

	sub.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

func parseChannels(raw json.RawMessage) ([]string, bool) {
	var p WSSubscribePayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil || len(p.Channels) == 0 {
		return nil, false
	}
	return p.Channels, true
}

// encodeWS stamps msg with the current time and marshals it.
func encodeWS(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
