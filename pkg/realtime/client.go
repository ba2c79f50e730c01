package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquamon/aquamon/pkg/infra/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 1024
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity Identity

	mu     sync.RWMutex
	topics map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	c := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 64),
		identity: identity,
		topics:   make(map[string]struct{}),
	}
	// Everyone starts on the alerts feed.
	c.topics["alerts"] = struct{}{}
	return c
}

// controlMessage is the only inbound shape clients may send.
type controlMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string `json:"topic"`
}

func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// allowedTopic scopes what each role may watch. Device topics are open
// to any authenticated client; everything else needs the admin role.
func (c *Client) allowedTopic(topic string) bool {
	if topic == "alerts" || strings.HasPrefix(topic, "device:") {
		return true
	}
	return c.identity.Role == RoleAdmin
}

// readPump consumes subscription control messages until the peer goes
// away, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Default().Debug("websocket read error", "error", err)
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err != nil || ctrl.Topic == "" {
			continue
		}
		if !c.allowedTopic(ctrl.Topic) {
			logger.Default().Warn("topic subscription denied",
				"subject", c.identity.Subject, "topic", ctrl.Topic)
			continue
		}

		c.mu.Lock()
		switch ctrl.Action {
		case "subscribe":
			c.topics[ctrl.Topic] = struct{}{}
		case "unsubscribe":
			delete(c.topics, ctrl.Topic)
		}
		c.mu.Unlock()
	}
}

// writePump drains the send channel to the connection and keeps the
// peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
