package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names sent to the browser.
const (
	EventContext     = "context"
	EventConnections = "connections"
	EventNavigate    = "navigate"
	EventStatus      = "status"
)

// Message is one server-sent event addressed to a channel (a session id).
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes v as the event payload.
func NewMessage(channel, event string, v any) (Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", event, err)
	}
	return Message{Channel: channel, Event: event, Data: raw}, nil
}

// Client is one connected event-stream reader.
type Client struct {
	ID       uuid.UUID
	channels map[string]bool
	outbound chan Message
	done     chan struct{}
	once     sync.Once

	// Newest context event that did not fit in outbound.
	heldMu  sync.Mutex
	held    *Message
	hasHeld chan struct{}
}

func (c *Client) hold(msg Message) {
	c.heldMu.Lock()
	c.held = &msg
	c.heldMu.Unlock()
	select {
	case c.hasHeld <- struct{}{}:
	default:
	}
}

func (c *Client) takeHeld() *Message {
	c.heldMu.Lock()
	defer c.heldMu.Unlock()
	msg := c.held
	c.held = nil
	return msg
}

// Hub fans messages out to the clients subscribed to their channel.
type Hub struct {
	mu            sync.RWMutex
	log           *slog.Logger
	heartbeat     time.Duration
	subscriptions map[string]map[*Client]bool
}

func NewHub(heartbeat time.Duration, log *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Hub{
		log:           log.With("component", "stream"),
		heartbeat:     heartbeat,
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// NewClient creates a client subscribed to channel.
func (h *Hub) NewClient(channel string) *Client {
	c := &Client{
		ID:       uuid.New(),
		channels: make(map[string]bool),
		outbound: make(chan Message, 16),
		done:     make(chan struct{}),
		hasHeld:  make(chan struct{}, 1),
	}
	h.Subscribe(c, channel)
	return c
}

func (h *Hub) Subscribe(c *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.channels[channel] = true
	clients, ok := h.subscriptions[channel]
	if !ok {
		clients = make(map[*Client]bool)
		h.subscriptions[channel] = clients
	}
	clients[c] = true
	h.log.Debug("stream client subscribed", "client_id", c.ID, "channel", channel)
}

// Remove unsubscribes the client from every channel.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range c.channels {
		if clients, ok := h.subscriptions[ch]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.subscriptions, ch)
			}
		}
	}
	c.channels = make(map[string]bool)
}

// Close disconnects a client. Safe to call more than once.
func (h *Hub) Close(c *Client) {
	c.once.Do(func() { close(c.done) })
	h.Remove(c)
}

// CloseChannel disconnects every client of a channel.
func (h *Hub) CloseChannel(channel string) {
	h.mu.RLock()
	var clients []*Client
	for c := range h.subscriptions[channel] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.Close(c)
	}
}

// Subscribers returns the number of clients on a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[channel])
}

// Broadcast delivers msg to the channel's clients. Slow clients whose buffer
// is full miss the message, except context events: the newest one is held
// and sent once the client catches up.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if msg.Channel == "" {
		return
	}
	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.outbound <- msg:
			if msg.Event == EventContext {
				c.takeHeld()
			}
		default:
			if msg.Event == EventContext {
				c.hold(msg)
				continue
			}
			h.log.Warn("dropping stream message, outbound buffer full", "client_id", c.ID, "event", msg.Event)
		}
	}
}

// ServeHTTP streams the client's messages until the request ends or the
// client is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, c *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-c.outbound:
			writeEvent(w, msg)
			flusher.Flush()
		case <-c.hasHeld:
			// Queued messages are older than the held one.
			for drained := false; !drained; {
				select {
				case msg := <-c.outbound:
					writeEvent(w, msg)
				default:
					drained = true
				}
			}
			if msg := c.takeHeld(); msg != nil {
				writeEvent(w, *msg)
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, msg Message) {
	data := msg.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
}
