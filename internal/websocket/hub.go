package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Upper bound on a single question, ranking plus provider call.
	askTimeout = 2 * time.Minute

	// Questions a socket may have waiting behind the one being answered.
	maxPendingQuestions = 4
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Asker answers a question against a session
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (*usecase.AskResult, error)
}

// envelope is an outbound payload for one client, or for every client of
// a session when client is nil
type envelope struct {
	client    *Client
	sessionID string
	payload   []byte
}

// Hub tracks the sockets open on each session and fans answers out to them.
// Only Run touches client send channels.
type Hub struct {
	sessions map[string]map[*Client]struct{}
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	outbound   chan envelope
	done       chan struct{}

	asker     Asker
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(asker Asker, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan envelope, 64),
		done:       make(chan struct{}),
		asker:      asker,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns once ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.sessions[client.sessionID]
			if !ok {
				clients = make(map[*Client]struct{})
				h.sessions[client.sessionID] = clients
			}
			clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("session_id", client.sessionID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("Client unregistered", zap.String("session_id", client.sessionID))

		case env := <-h.outbound:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	var targets []*Client
	h.mu.RLock()
	if env.client != nil {
		if _, ok := h.sessions[env.sessionID][env.client]; ok {
			targets = append(targets, env.client)
		}
	} else {
		for client := range h.sessions[env.sessionID] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- env.payload:
		default:
			// Slow consumer; drop it rather than block every other session.
			h.logger.Warn("Dropping slow client", zap.String("session_id", client.sessionID))
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
	}
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, clients := range h.sessions {
		for client := range clients {
			close(client.send)
		}
		delete(h.sessions, sessionID)
	}
}

// ClientCount returns the number of sockets open on a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// send queues payload for delivery; it gives up once the hub has stopped
func (h *Hub) send(env envelope) {
	select {
	case h.outbound <- env:
	case <-h.done:
	}
}

func (h *Hub) sendJSON(client *Client, sessionID string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	h.send(envelope{client: client, sessionID: sessionID, payload: payload})
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Session this socket asks about
	sessionID string

	// Questions waiting for askLoop, answered in arrival order
	questions chan *QuestionMessage

	// Cancelled when the read side stops, aborting any in-flight question
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// ServeSession upgrades the request and attaches the socket to sessionID.
// The caller has already checked that the session exists.
func (h *Hub) ServeSession(c echo.Context, sessionID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 16),
		questions: make(chan *QuestionMessage, maxPendingQuestions),
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		logger:    h.logger.With(zap.String("session_id", sessionID)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.askLoop()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.hub.sendJSON(c, c.sessionID, CreateErrorMessage("", domain.CodeInvalidInput, "only text frames are supported"))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
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
				c.logger.Error("Failed to write message", zap.Error(err))
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

// processMessage handles one text frame. Questions are queued for askLoop so
// reading continues while a provider call is in flight.
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.hub.sendJSON(c, c.sessionID, CreateErrorMessage("", domain.CodeInvalidInput, err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *PingMessage:
		c.hub.sendJSON(c, c.sessionID, CreatePongMessage(msg.MessageID, msg.Data))

	case *QuestionMessage:
		select {
		case c.questions <- msg:
		default:
			c.logger.Warn("Question queue full", zap.String("message_id", msg.MessageID))
			c.hub.sendJSON(c, c.sessionID, CreateErrorMessage(msg.MessageID, domain.CodeInvalidInput, "too many pending questions"))
		}
	}
}

// askLoop answers queued questions one at a time until the read side stops
func (c *Client) askLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.questions:
			c.answer(msg)
		}
	}
}

func (c *Client) answer(msg *QuestionMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, askTimeout)
	defer cancel()

	result, err := c.hub.asker.Ask(ctx, c.sessionID, msg.Question)
	if err != nil {
		if c.ctx.Err() != nil {
			c.logger.Info("Question abandoned, client disconnected", zap.String("message_id", msg.MessageID))
			return
		}
		code := domain.Code(err)
		c.logger.Warn("Question failed", zap.String("error_code", code), zap.Error(err))
		c.hub.sendJSON(c, c.sessionID, CreateErrorMessage(msg.MessageID, code, domain.Message(code)))
		return
	}

	c.hub.sendJSON(nil, c.sessionID, CreateAnswerMessage(
		msg.MessageID, result.SessionID, msg.Question, result.Answer,
		result.SupportingTimestamps, result.Conversation))
}
