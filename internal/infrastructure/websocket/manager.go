package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"talentos/internal/domain/entity"
	"talentos/internal/usecase"
)

// Client represents one authenticated WebSocket connection. Each connection
// carries its own conversation list aggregator and one message merger per
// joined conversation; both are torn down when the connection drops.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu         sync.Mutex
	closed     bool
	mergers    map[string]*usecase.Merger
	aggregator *usecase.Aggregator
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		mergers: make(map[string]*usecase.Merger),
	}
}

// Manager manages all active WebSocket connections
type Manager struct {
	chatUseCase *usecase.ChatUseCase
	clients     map[string]*Client
	Register    chan *Client
	Unregister  chan *Client
	mutex       sync.RWMutex
}

// NewManager creates a new WebSocket connection manager
func NewManager(chatUseCase *usecase.ChatUseCase) *Manager {
	return &Manager{
		chatUseCase: chatUseCase,
		clients:     make(map[string]*Client),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
	}
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if previous, ok := m.clients[client.UserID]; ok {
					// One live connection per user; the newer one wins.
					previous.teardown()
					previous.closeSend()
				}
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				m.startAggregator(ctx, client)
				log.Printf("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if current, ok := m.clients[client.UserID]; ok && current == client {
					delete(m.clients, client.UserID)
					client.closeSend()
				}
				m.mutex.Unlock()
				client.teardown()
				log.Printf("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// startAggregator wires the connection's conversation list: the initial
// snapshot is pushed right away and every recompute after that.
func (m *Manager) startAggregator(ctx context.Context, client *Client) {
	aggregator := m.chatUseCase.NewAggregator(client.UserID)
	aggregator.SetOnChange(func(summaries []*entity.ConversationSummary) {
		m.pushConversationList(client, summaries)
	})

	client.mu.Lock()
	client.aggregator = aggregator
	client.mu.Unlock()

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			log.Printf("WebSocket: conversation list load for %s failed: %v", client.UserID, err)
			m.sendErrorToClient(client, "Failed to load conversation list")
		}
	}()
}

// deliver queues an outbound frame, dropping it if the buffer is full or the
// connection is already torn down. The closed check and the channel send share
// the client lock so a late frame can never land on a closed channel.
func (c *Client) deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) merger(conversationID string) *usecase.Merger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergers[conversationID]
}

func (c *Client) putMerger(conversationID string, merger *usecase.Merger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergers[conversationID] = merger
}

func (c *Client) dropMerger(conversationID string) *usecase.Merger {
	c.mu.Lock()
	defer c.mu.Unlock()
	merger := c.mergers[conversationID]
	delete(c.mergers, conversationID)
	return merger
}

// teardown closes every merger and the aggregator owned by the connection.
func (c *Client) teardown() {
	c.mu.Lock()
	mergers := c.mergers
	c.mergers = make(map[string]*usecase.Merger)
	aggregator := c.aggregator
	c.aggregator = nil
	c.mu.Unlock()

	for _, merger := range mergers {
		merger.Close()
	}
	if aggregator != nil {
		aggregator.Close()
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		err := c.Conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			log.Printf("error: %v", err)
			return
		}
	}
}
