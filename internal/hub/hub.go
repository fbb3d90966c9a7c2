// Package hub implements the Broadcast Hub (C9): a set of connected
// WebSocket overlay clients fed by the orchestrator's playback events,
// grounded on rustyguts-bken's gorilla/websocket server handler (adapted
// here from a multi-room chat protocol to one-way broadcast fan-out) and
// the teacher's event-bus subscription style.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/chatvoice/internal/bus"
)

const (
	writeTimeout  = 5 * time.Second
	clientSendCap = 32
)

// Voice is the subset of voice identity the client needs to render a
// "play" event.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Avatar   string `json:"avatar,omitempty"`
}

// TargetSlot describes where on screen to render playback.
type TargetSlot struct {
	ID   string  `json:"id"`
	XPos float64 `json:"x_position"`
	YPos float64 `json:"y_position"`
	Size float64 `json:"size"`
}

// PlayEvent is broadcast when a synthesis job completes (spec.md §6).
type PlayEvent struct {
	Type         string     `json:"type"`
	User         string     `json:"user"`
	Message      string     `json:"message"`
	EventType    string     `json:"eventType"`
	Voice        Voice      `json:"voice"`
	AudioURL     string     `json:"audioUrl"`
	TargetSlot   TargetSlot `json:"targetSlot"`
	AvatarData   any        `json:"avatarData,omitempty"`
	GenerationID int        `json:"generationId"`
}

// StopEvent halts local playback for a given user, e.g. on moderation.
type StopEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// SlotsUpdatedEvent notifies clients the slot table was rebuilt.
type SlotsUpdatedEvent struct {
	Type         string `json:"type"`
	Slots        any    `json:"slots"`
	GenerationID int    `json:"generationId"`
}

// SettingsUpdatedEvent notifies clients of a configuration reload.
type SettingsUpdatedEvent struct {
	Type     string `json:"type"`
	Settings any    `json:"settings"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out JSON payloads to every connected overlay client.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// onAudioEnded is invoked when a client reports {type:"audio_ended",
	// slotId}, so the orchestrator can release a slot early.
	onAudioEnded func(slotID string)
}

// New constructs a Hub and subscribes it to the orchestrator's playback
// event bus.
func New(b *bus.EventBus, logger zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	b.Subscribe(bus.EventTypePlay, func(e bus.Event) { h.broadcastEventData(e.Data) })
	b.Subscribe(bus.EventTypeStop, func(e bus.Event) { h.broadcastEventData(e.Data) })
	b.Subscribe(bus.EventTypeSlotsUpdated, func(e bus.Event) { h.broadcastEventData(e.Data) })
	b.Subscribe(bus.EventTypeSettingsUpdated, func(e bus.Event) { h.broadcastEventData(e.Data) })

	return h
}

// SetAudioEndedHandler registers the callback fired on a client's
// {type:"audio_ended", slotId} message (spec.md §6).
func (h *Hub) SetAudioEndedHandler(handler func(slotID string)) {
	h.mu.Lock()
	h.onAudioEnded = handler
	h.mu.Unlock()
}

func (h *Hub) broadcastEventData(data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal broadcast payload")
		return
	}
	h.Broadcast(payload)
}

// Broadcast serializes payload to every connected client; any client whose
// send buffer is full or whose connection has failed is dropped from the
// set, per spec.md §4.9 ("no reliability guarantees").
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- payload:
		default:
			h.removeClient(c)
		}
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal broadcast value")
		return
	}
	h.Broadcast(payload)
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket connection and serves it
// until disconnect. Connects/disconnects are idempotent: a failed upgrade
// simply never registers a client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendCap)}
	h.addClient(c)
	defer h.removeClient(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

type clientInbound struct {
	Type   string `json:"type"`
	SlotID string `json:"slotId"`
}

func (h *Hub) readPump(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in clientInbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if in.Type == "audio_ended" && in.SlotID != "" {
			h.mu.RLock()
			handler := h.onAudioEnded
			h.mu.RUnlock()
			if handler != nil {
				handler(in.SlotID)
			}
		}
	}
}
