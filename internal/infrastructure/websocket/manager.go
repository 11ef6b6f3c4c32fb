package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Subscriber opens live message windows. MessageUseCase implements it.
type Subscriber interface {
	Subscribe(
		ctx context.Context,
		conversationID string,
		limit int,
		onMessages func([]*entity.Message),
		onError func(error),
	) (repository.Unsubscribe, error)
}

// Client is one WebSocket connection and the conversations it watches.
type Client struct {
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte

	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
	closed        bool
	subscriptions map[string]repository.Unsubscribe
}

// NewClient binds conn to ctx, which must carry the caller identity and
// outlive the HTTP handler.
func NewClient(ctx context.Context, userID int64, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]repository.Unsubscribe),
	}
}

// enqueue hands a frame to the write pump. A client that cannot keep up is
// disconnected.
func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- frame:
	default:
		logger.Warn("WebSocket: client %d send buffer full, closing connection", c.UserID)
		c.Conn.Close()
	}
}

func (c *Client) setSubscription(conversationID string, unsubscribe repository.Unsubscribe) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subscriptions[conversationID] = unsubscribe
	return true
}

func (c *Client) takeSubscription(conversationID string) repository.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	unsubscribe := c.subscriptions[conversationID]
	delete(c.subscriptions, conversationID)
	return unsubscribe
}

// shutdown detaches every subscription and closes Send. Safe to call twice.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = nil
	close(c.Send)
	c.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	c.cancel()
}

// Manager tracks live connections and bridges them to message
// subscriptions.
type Manager struct {
	subscriber Subscriber
	clients    map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	stopped    chan struct{}
	mutex      sync.RWMutex
}

func NewManager(subscriber Subscriber) *Manager {
	return &Manager{
		subscriber: subscriber,
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Start runs the registration loop until ctx is done, then drops every
// client.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				m.mutex.Unlock()
				logger.Debug("WebSocket: client registered: %d", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				delete(m.clients, client)
				m.mutex.Unlock()
				client.shutdown()
				logger.Debug("WebSocket: client unregistered: %d", client.UserID)

			case <-ctx.Done():
				close(m.stopped)
				m.mutex.Lock()
				for client := range m.clients {
					client.shutdown()
					client.Conn.Close()
				}
				m.clients = make(map[*Client]struct{})
				m.mutex.Unlock()
				return
			}
		}
	}()
}

func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// Serve registers client and runs its pumps. It returns immediately.
func (m *Manager) Serve(client *Client) {
	select {
	case m.Register <- client:
	case <-m.stopped:
		client.Conn.Close()
		return
	}
	go client.ReadPump(m)
	go client.WritePump()
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.stopped:
		client.shutdown()
	}
}

// ReadPump reads client frames until the connection fails.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error from client %d: %v", c.UserID, err)
			}
			return
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump drains Send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: write to client %d failed: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
