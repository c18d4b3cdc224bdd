package ws

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const sendTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are checked by middleware.WebSocketCORSCheck
	},
}

// Client is one WebSocket connection watching a table.
type Client struct {
	conn    *websocket.Conn
	tableID string
	name    string
	binary  bool // msgpack frames instead of JSON text
	control bool // holds a valid table token
	send    chan []byte
}

// Hub keeps one room of clients per table.
type Hub struct {
	rooms      map[string]map[*Client]bool // tableID -> clients
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run services register and unregister requests until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, exists := h.rooms[client.tableID]; !exists {
				h.rooms[client.tableID] = make(map[*Client]bool)
			}
			h.rooms[client.tableID][client] = true
			size := len(h.rooms[client.tableID])
			h.mu.Unlock()
			log.Printf("[WS] %s joined table %s (room_size=%d)", client.name, client.tableID, size)

		case client := <-h.unregister:
			h.mu.Lock()
			if room, exists := h.rooms[client.tableID]; exists && room[client] {
				delete(room, client)
				if len(room) == 0 {
					delete(h.rooms, client.tableID)
				}
				close(client.send)
				log.Printf("[WS] %s left table %s", client.name, client.tableID)
			}
			h.mu.Unlock()
		}
	}
}

// RoomSize returns the number of clients watching a table.
func (h *Hub) RoomSize(tableID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tableID])
}

// BroadcastToTable sends a message to every client watching a table, encoded
// for each client's wire format. A client whose buffer stays full for
// sendTimeout misses the message.
func (h *Hub) BroadcastToTable(tableID string, message interface{}) {
	h.broadcast(tableID, message, sendTimeout)
}

// BroadcastLossy is BroadcastToTable for frames and events: slow clients drop
// them immediately.
func (h *Hub) BroadcastLossy(tableID string, message interface{}) {
	h.broadcast(tableID, message, 0)
}

func (h *Hub) broadcast(tableID string, message interface{}, wait time.Duration) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, exists := h.rooms[tableID]
	if !exists {
		return
	}

	encoded := map[bool][]byte{}
	for client := range room {
		data, ok := encoded[client.binary]
		if !ok {
			b, err := encode(client.binary, message)
			if err != nil {
				log.Printf("[WS] Error encoding message for table %s: %v", tableID, err)
				return
			}
			encoded[client.binary] = b
			data = b
		}

		select {
		case client.send <- data:
			continue
		default:
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case client.send <- data:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}
		log.Printf("[WS] Send buffer full for %s on table %s, dropping message", client.name, tableID)
	}
}

// encode renders an outgoing message as JSON text or msgpack. msgpack reuses
// the json struct tags so both encodings carry the same field names.
func encode(binary bool, message interface{}) ([]byte, error) {
	if !binary {
		return json.Marshal(message)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode parses an incoming command from either wire format.
func decode(messageType int, raw []byte, v interface{}) error {
	if messageType == websocket.BinaryMessage {
		dec := msgpack.NewDecoder(bytes.NewReader(raw))
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	}
	return json.Unmarshal(raw, v)
}

// Command is a client message.
type Command struct {
	Type string      `json:"type"`
	Data CommandData `json:"data"`
}

// CommandData carries the optional arguments of a command.
type CommandData struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
	Power float64 `json:"power"`
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.binary {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(frameType, message); err != nil {
				log.Printf("[WS] Write error for %s: %v", c.name, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for %s: %v", c.name, err)
				return
			}
		}
	}
}

// sendMessage queues a message for this client only.
func (c *Client) sendMessage(message interface{}) {
	data, err := encode(c.binary, message)
	if err != nil {
		log.Printf("[WS] Error encoding message for %s: %v", c.name, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] Send buffer full for %s, dropping message", c.name)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	c.sendMessage(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}
