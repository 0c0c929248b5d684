package realtime

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/martincass/UCAMtracker/internal/logger"
)

const EventSubmissionStatus = "submission.status"

// Event is pushed to connected dashboards when a submission changes.
type Event struct {
	Type         string    `json:"type"`
	SubmissionID string    `json:"submission_id"`
	ClientID     string    `json:"client_id"`
	Status       string    `json:"status"`
	Version      int       `json:"version"`
	At           time.Time `json:"at"`
}

// Publisher fans submission events out to interested sessions.
type Publisher interface {
	Publish(ev Event)
}

// Hub tracks live connections and routes events to the owning client's
// connections and to every admin connection.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan Event
	stop       chan struct{}
	count      atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, 256),
		stop:       make(chan struct{}),
	}
}

// Run processes registrations and events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			logger.Debug("Realtime client connected", map[string]interface{}{
				"user_id": client.UserID,
				"clients": len(h.clients),
			})
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int64(len(h.clients)))
			}
		case ev := <-h.events:
			h.deliver(ev)
		case <-h.stop:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(0)
			return
		}
	}
}

func (h *Hub) deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.WithError(err, "realtime").Error("Failed to encode event")
		return
	}
	for client := range h.clients {
		if !client.wants(ev) {
			continue
		}
		select {
		case client.send <- data:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.count.Store(int64(len(h.clients)))
}

// Publish queues an event for delivery. Events are dropped when the queue is full.
func (h *Hub) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = EventSubmissionStatus
	}
	select {
	case h.events <- ev:
	default:
		logger.Warn("Realtime event queue full, dropping event", map[string]interface{}{
			"submission_id": ev.SubmissionID,
		})
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
