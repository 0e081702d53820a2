package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SwapMessage is the frame pushed to subscribers after each persisted block.
type SwapMessage struct {
	Type   string            `json:"type"`
	Block  uint64            `json:"block"`
	Events []types.SwapEvent `json:"events"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketManager fans persisted swaps out to connected clients. Only Run
// touches the client set's send channels, so a slow client is dropped instead
// of stalling the pipeline.
type WebSocketManager struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mutex      sync.Mutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

func (manager *WebSocketManager) Run(ctx context.Context) {
	defer func() {
		manager.mutex.Lock()
		for c := range manager.clients {
			delete(manager.clients, c)
			close(c.send)
		}
		manager.mutex.Unlock()
		close(manager.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-manager.register:
			manager.mutex.Lock()
			manager.clients[c] = true
			manager.mutex.Unlock()
		case c := <-manager.unregister:
			manager.mutex.Lock()
			if _, ok := manager.clients[c]; ok {
				delete(manager.clients, c)
				close(c.send)
			}
			manager.mutex.Unlock()
		case message := <-manager.broadcast:
			manager.mutex.Lock()
			for c := range manager.clients {
				select {
				case c.send <- message:
				default:
					logger.Warn("Dropping slow websocket client %s", c.conn.RemoteAddr())
					delete(manager.clients, c)
					close(c.send)
				}
			}
			manager.mutex.Unlock()
		}
	}
}

// ClientCount reports the number of registered clients.
func (manager *WebSocketManager) ClientCount() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return len(manager.clients)
}

func (manager *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case manager.register <- c:
	case <-manager.done:
		conn.Close()
		return
	}

	go manager.readPump(c)
	go manager.writePump(c)
}

func (manager *WebSocketManager) readPump(c *client) {
	defer func() {
		select {
		case manager.unregister <- c:
		case <-manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Unexpected close error: %v", err)
			}
			return
		}
	}
}

func (manager *WebSocketManager) writePump(c *client) {
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
				logger.Error("Error broadcasting message: %v", err)
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

// PublishSwaps broadcasts the persisted swaps of one block.
func (manager *WebSocketManager) PublishSwaps(ctx context.Context, block uint64, events []types.SwapEvent) error {
	if len(events) == 0 {
		return nil
	}
	data, err := json.Marshal(SwapMessage{Type: "swap_events", Block: block, Events: events})
	if err != nil {
		return &errors.WebSocketError{Operation: "marshal swap events", Err: err}
	}

	select {
	case manager.broadcast <- data:
		return nil
	case <-manager.done:
		return &errors.WebSocketError{Operation: "broadcast swap events", Err: context.Canceled}
	case <-ctx.Done():
		return &errors.WebSocketError{Operation: "broadcast swap events", Err: ctx.Err()}
	}
}
