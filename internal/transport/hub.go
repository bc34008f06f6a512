// Package transport implements the WebSocket relay (component E): it
// accepts subscribe/unsubscribe requests from clients, owns one shared
// file watcher per subscribed session, and fans out parsed batches and
// session lifecycle events to connected clients.
//
// Grounded in shape on the teacher's ws_control_plane connection
// registry and read/write-pump pattern, and on its ws_schema validation
// registry for the "reject malformed, keep the connection open" rule —
// adapted to this package's subscribe/unsubscribe/messages/error and
// session:* protocol instead of the teacher's chat/control protocol.
package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pruett/fleet-sub000/internal/watcher"
)

// Close codes used when terminating a connection.
const (
	CloseUnsupportedData = 1003
	CloseGoingAway       = 1001
)

// wsConn is the subset of *websocket.Conn this package depends on,
// narrowed so the hub can be exercised against a fake in tests.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// SessionResolver maps a sessionId to a transcript file path. It returns
// ok=false when the session is unknown.
type SessionResolver func(sessionID string) (path string, ok bool)

// Client is one connected WebSocket peer.
type Client struct {
	ID   string
	conn wsConn

	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID *string
}

func (c *Client) send(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(1 /* websocket.TextMessage */, frame)
}

func (c *Client) currentSession() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == nil {
		return "", false
	}
	return *c.sessionID, true
}

func (c *Client) setSession(sessionID *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// Hub owns the client registry, the session->subscriber dual index, and
// the shared watchers backing each subscribed session.
type Hub struct {
	resolve  SessionResolver
	watchers *watcher.Registry
	metrics  hubMetrics
	tracer   hubTracer

	debounceMs int
	maxWaitMs  int

	mu          sync.RWMutex
	clients     map[string]*Client
	subscribers map[string]map[string]*Client // sessionID -> clientID -> Client
}

// hubMetrics is the subset of observability.Metrics the hub reports to,
// narrowed to keep this package's dependency on observability optional
// and easy to stub in tests.
type hubMetrics interface {
	ClientConnected()
	ClientDisconnected()
	Subscribed()
	Unsubscribed()
	FrameReceived(messageType string)
	FrameSent(messageType string)
}

// hubTracer is the subset of observability.Tracer the hub spans against,
// narrowed the same way hubMetrics is.
type hubTracer interface {
	TraceWSConnection(ctx context.Context, clientID string) (context.Context, trace.Span)
	TraceSubscribe(ctx context.Context, clientID, sessionID string) (context.Context, trace.Span)
	TraceWatcherFlush(ctx context.Context, sessionID string, messageCount int) (context.Context, trace.Span)
}

// NewHub constructs an empty Hub. watchers is typically shared with a
// process-wide watcher.Registry.
func NewHub(resolve SessionResolver, watchers *watcher.Registry) *Hub {
	return &Hub{
		resolve:     resolve,
		watchers:    watchers,
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]*Client),
	}
}

// SetMetrics attaches a metrics recorder. Safe to call once before the
// hub starts accepting connections.
func (h *Hub) SetMetrics(m hubMetrics) {
	h.metrics = m
}

// SetTracer attaches a tracer. Safe to call once before the hub starts
// accepting connections.
func (h *Hub) SetTracer(t hubTracer) {
	h.tracer = t
}

// SetWatchDefaults sets the debounce and max-wait timing passed to every
// watcher the hub starts afterward. Zero values leave the watcher
// package's own defaults in effect.
func (h *Hub) SetWatchDefaults(debounceMs, maxWaitMs int) {
	h.debounceMs = debounceMs
	h.maxWaitMs = maxWaitMs
}

// Connect registers a new client and returns it. The caller is
// responsible for running ReadLoop on its own goroutine.
func (h *Hub) Connect(conn wsConn) *Client {
	c := &Client{ID: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	return c
}

// ReadLoop pumps inbound frames for c until the connection closes or a
// binary frame arrives (§4.4: binary frames close with code 1003). It
// performs cleanup (unsubscribe + deregister) before returning.
func (h *Hub) ReadLoop(c *Client) {
	defer h.disconnect(c)

	ctx := context.Background()
	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.TraceWSConnection(ctx, c.ID)
		defer span.End()
	}

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == 2 /* websocket.BinaryMessage */ {
			_ = c.conn.WriteControl(8 /* websocket.CloseMessage */, closePayload(CloseUnsupportedData, "binary frames unsupported"), time.Now().Add(time.Second))
			return
		}
		h.dispatch(ctx, c, data)
	}
}

// closePayload builds a close-frame body: the 2-byte big-endian close
// code followed by the UTF-8 reason.
func closePayload(code int, reason string) []byte {
	b := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(b, uint16(code))
	copy(b[2:], reason)
	return b
}

func (h *Hub) dispatch(ctx context.Context, c *Client, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.send(newErrorFrame(CodeInvalidMessage, "malformed JSON"))
		return
	}
	if err := validateInboundFrame(data, env); err != nil {
		c.send(newErrorFrame(CodeInvalidMessage, err.Error()))
		return
	}
	switch env.Type {
	case TypeSubscribe:
		h.recordFrameReceived(TypeSubscribe)
		h.handleSubscribe(ctx, c, env.SessionID)
	case TypeUnsubscribe:
		h.recordFrameReceived(TypeUnsubscribe)
		h.handleUnsubscribe(c)
	default:
		h.recordFrameReceived("invalid")
		c.send(newErrorFrame(CodeInvalidMessage, "unknown message type"))
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, sessionID string) {
	if !isUUIDv4(sessionID) {
		c.send(newErrorFrame(CodeInvalidMessage, "sessionId must be a UUID v4"))
		return
	}
	path, ok := h.resolve(sessionID)
	if !ok {
		c.send(newErrorFrame(CodeUnknownSession, "unknown session"))
		return
	}

	if h.tracer != nil {
		_, span := h.tracer.TraceSubscribe(ctx, c.ID, sessionID)
		span.End()
	}

	// Atomic re-subscribe: unsubscribe-then-subscribe, per §4.4.
	if prev, subscribed := c.currentSession(); subscribed {
		h.removeSubscriber(prev, c)
	}

	h.addSubscriber(sessionID, c)
	c.setSession(&sessionID)

	h.ensureWatcher(sessionID, path)
}

func (h *Hub) handleUnsubscribe(c *Client) {
	sessionID, ok := c.currentSession()
	if !ok {
		return
	}
	h.removeSubscriber(sessionID, c)
	c.setSession(nil)
}

func (h *Hub) addSubscriber(sessionID string, c *Client) {
	h.mu.Lock()
	set, ok := h.subscribers[sessionID]
	if !ok {
		set = make(map[string]*Client)
		h.subscribers[sessionID] = set
	}
	set[c.ID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Subscribed()
	}
}

// removeSubscriber removes c from sessionID's subscriber set. If the set
// becomes empty, the shared watcher is stopped and the session entry is
// dropped, per §4.4's unsubscribe rules.
func (h *Hub) removeSubscriber(sessionID string, c *Client) {
	h.mu.Lock()
	set, ok := h.subscribers[sessionID]
	empty := false
	removed := false
	if ok {
		if _, present := set[c.ID]; present {
			removed = true
		}
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.subscribers, sessionID)
			empty = true
		}
	}
	h.mu.Unlock()

	if removed && h.metrics != nil {
		h.metrics.Unsubscribed()
	}
	if empty {
		h.watchers.StopWatching(sessionID)
	}
}

func (h *Hub) recordFrameReceived(messageType string) {
	if h.metrics != nil {
		h.metrics.FrameReceived(messageType)
	}
}

func (h *Hub) ensureWatcher(sessionID, path string) {
	h.watchers.WatchSession(watcher.Options{
		SessionID:  sessionID,
		FilePath:   path,
		DebounceMs: h.debounceMs,
		MaxWaitMs:  h.maxWaitMs,
		OnMessages: func(batch watcher.Batch) {
			if h.tracer != nil {
				_, span := h.tracer.TraceWatcherFlush(context.Background(), sessionID, len(batch.Messages))
				defer span.End()
			}
			h.broadcastBatch(sessionID, batch)
		},
	})
}

func (h *Hub) broadcastBatch(sessionID string, batch watcher.Batch) {
	frame, err := marshalBatch(batch)
	if err != nil {
		return
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.subscribers[sessionID]))
	for _, c := range h.subscribers[sessionID] {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		c.send(frame)
	}
	h.recordFrameSent(TypeMessages, len(recipients))
}

// disconnect performs the close-time unsubscribe (if subscribed) and
// removes c from the registry. Idempotent.
func (h *Hub) disconnect(c *Client) {
	if sessionID, ok := c.currentSession(); ok {
		h.removeSubscriber(sessionID, c)
		c.setSession(nil)
	}
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) recordFrameSent(messageType string, count int) {
	if h.metrics == nil {
		return
	}
	for i := 0; i < count; i++ {
		h.metrics.FrameSent(messageType)
	}
}

// BroadcastLifecycle sends a lifecycle frame to every connected client
// regardless of subscription, per §4.4.
func (h *Hub) BroadcastLifecycle(frame []byte) {
	h.broadcastLifecycle(frame, "lifecycle")
}

func (h *Hub) broadcastLifecycle(frame []byte, messageType string) {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		c.send(frame)
	}
	h.recordFrameSent(messageType, len(recipients))
}

// SessionStarted broadcasts a session:started lifecycle event.
func (h *Hub) SessionStarted(sessionID, projectID, cwd, startedAt string) {
	b, err := json.Marshal(sessionStartedFrame{Type: TypeSessionStarted, SessionID: sessionID, ProjectID: projectID, Cwd: cwd, StartedAt: startedAt})
	if err != nil {
		return
	}
	h.broadcastLifecycle(b, TypeSessionStarted)
}

// SessionStopped broadcasts a session:stopped lifecycle event.
func (h *Hub) SessionStopped(sessionID string, reason StopReason, stoppedAt string) {
	b, err := json.Marshal(sessionStoppedFrame{Type: TypeSessionStopped, SessionID: sessionID, Reason: reason, StoppedAt: stoppedAt})
	if err != nil {
		return
	}
	h.broadcastLifecycle(b, TypeSessionStopped)
}

// SessionError broadcasts a session:error lifecycle event.
func (h *Hub) SessionError(sessionID, errText, occurredAt string) {
	b, err := json.Marshal(sessionErrorFrame{Type: TypeSessionError, SessionID: sessionID, Error: errText, OccurredAt: occurredAt})
	if err != nil {
		return
	}
	h.broadcastLifecycle(b, TypeSessionError)
}

// SessionActivity broadcasts a session:activity lifecycle event.
func (h *Hub) SessionActivity(sessionID, updatedAt string) {
	b, err := json.Marshal(sessionActivityFrame{Type: TypeSessionActivity, SessionID: sessionID, UpdatedAt: updatedAt})
	if err != nil {
		return
	}
	h.broadcastLifecycle(b, TypeSessionActivity)
}

// Shutdown stops every watcher, unsubscribes every client, closes every
// connection with code 1001, and clears both indices.
func (h *Hub) Shutdown() {
	h.watchers.StopAll()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.subscribers = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(8 /* websocket.CloseMessage */, closePayload(CloseGoingAway, "Server shutting down"), time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

func isUUIDv4(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4
}

type byteRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func marshalBatch(batch watcher.Batch) ([]byte, error) {
	return json.Marshal(struct {
		Type      string    `json:"type"`
		SessionID string    `json:"sessionId"`
		Messages  any       `json:"messages"`
		ByteRange byteRange `json:"byteRange"`
	}{
		Type:      TypeMessages,
		SessionID: batch.SessionID,
		Messages:  batch.Messages,
		ByteRange: byteRange{Start: batch.ByteRangeStart, End: batch.ByteRangeEnd},
	})
}
