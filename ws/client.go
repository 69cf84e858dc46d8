package ws

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"aprswx/hub"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32
)

// controlMessage is what clients send: subscribe/unsubscribe/filter/ping.
type controlMessage struct {
	Type   string     `json:"type"`
	Topic  string     `json:"topic,omitempty"`
	Filter hub.Filter `json:"filter,omitempty"`
}

// controlFrame is a server-to-client frame outside the event stream.
type controlFrame struct {
	Type    string    `json:"type"`
	Topic   string    `json:"topic,omitempty"`
	Message string    `json:"message,omitempty"`
	Payload any       `json:"data,omitempty"`
	Time    time.Time `json:"timestamp"`
}

// eventFrame is a delivered hub event.
type eventFrame struct {
	Type    string    `json:"type"`
	Topic   hub.Topic `json:"topic"`
	Payload any       `json:"data"`
	Time    time.Time `json:"timestamp"`
}

// client is one WebSocket connection. The write pump is the only goroutine
// touching the socket for writes; the read pump handles control messages and
// drives subscription state in the hub.
type client struct {
	id     string
	conn   *websocket.Conn
	events *hub.Hub
	queue  <-chan hub.Event
	send   chan []byte
}

func newClient(conn *websocket.Conn, events *hub.Hub) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		conn:   conn,
		events: events,
		queue:  events.Register(id),
		send:   make(chan []byte, sendQueueSize),
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// sendJSON queues a control frame for the write pump; drops when the client
// cannot keep up.
func (c *client) sendJSON(frame controlFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("ws: marshal frame: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("ws: send queue full for %s, dropping %s frame", c.id, frame.Type)
	}
}

func (c *client) readPump() {
	defer func() {
		c.events.Unregister(c.id)
		c.conn.Close()
		log.Printf("ws: client disconnected: %s", c.id)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error for %s: %v", c.id, err)
			}
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendJSON(controlFrame{Type: "error", Message: "invalid JSON", Time: time.Now().UTC()})
			continue
		}
		c.handleControl(msg)
	}
}

func (c *client) handleControl(msg controlMessage) {
	now := time.Now().UTC()
	switch msg.Type {
	case "subscribe":
		if err := c.events.Subscribe(c.id, hub.Topic(msg.Topic), msg.Filter); err != nil {
			c.sendJSON(controlFrame{Type: "error", Message: err.Error(), Time: now})
			return
		}
		c.sendJSON(controlFrame{Type: "subscribed", Topic: msg.Topic, Time: now})
	case "unsubscribe":
		c.events.Unsubscribe(c.id, hub.Topic(msg.Topic))
		c.sendJSON(controlFrame{Type: "unsubscribed", Topic: msg.Topic, Time: now})
	case "ping":
		c.sendJSON(controlFrame{Type: "pong", Time: now})
	default:
		c.sendJSON(controlFrame{Type: "error", Message: "unknown message type", Time: now})
	}
}

// writePump serializes all socket writes: queued control frames, hub events
// in publish order, and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if !c.writeMessage(data) {
				return
			}
		case ev, ok := <-c.queue:
			if !ok {
				// Unregistered from the hub; say goodbye.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			data, err := json.Marshal(eventFrame{
				Type:    ev.Kind,
				Topic:   ev.Topic,
				Payload: ev.Payload,
				Time:    ev.Time,
			})
			if err != nil {
				log.Printf("ws: marshal event: %v", err)
				continue
			}
			if !c.writeMessage(data) {
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

func (c *client) writeMessage(data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// A failed write loses this client's message only; the hub keeps
		// serving everyone else.
		return false
	}
	return true
}
