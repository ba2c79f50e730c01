// Package realtime pushes alert lifecycle events to connected clients
// over websockets, with an optional NATS bridge for external consumers.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/aquamon/aquamon/pkg/infra/logger"
)

// Publisher is the minimal fan-out surface the rest of the system sees.
type Publisher interface {
	Publish(topic, event string, payload any) error
}

// envelope is the wire shape sent to every subscriber of a topic.
type envelope struct {
	Topic   string    `json:"topic"`
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Hub tracks connected clients and their topic subscriptions. Admin
// clients may watch any topic; regular clients are limited to alert
// and device topics.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			logger.Default().Debug("websocket client registered", "subject", c.identity.Subject)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Publish serializes the event once and hands it to every client
// subscribed to the topic. Slow clients are dropped rather than
// allowed to stall the others.
func (h *Hub) Publish(topic, event string, payload any) error {
	data, err := json.Marshal(envelope{
		Topic:   topic,
		Event:   event,
		Payload: payload,
		SentAt:  time.Now(),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var stalled []*Client
	for c := range h.clients {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		logger.Default().Warn("dropping stalled websocket client", "subject", c.identity.Subject)
		h.unregister <- c
	}
	return nil
}

// ClientCount reports connected clients, used by the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ Publisher = (*Hub)(nil)
