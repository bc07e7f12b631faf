package shelly

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	wsSendBufferSize = 256
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 60 * time.Second
	wsWriteWait      = 10 * time.Second
	maxFrameSize     = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub tracks the open RPC channels.
type Hub struct {
	dispatcher *Dispatcher
	clients    map[*wsClient]struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
	// source id announced by the peer in its requests
	src string
}

func NewHub(dispatcher *Dispatcher, logger *zap.Logger) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
	}
}

// HandleWebSocket upgrades GET /rpc and serves requests until the peer
// disconnects.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		done: make(chan struct{}),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.Int("clients", n))
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()
	client.close()
	h.logger.Debug("websocket client disconnected", zap.Int("clients", n))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyStatus pushes a status notification to every peer that identified
// itself. Slow peers miss notifications instead of blocking the caller.
func (h *Hub) NotifyStatus(data *domain.MeterData) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		dst := client.source()
		if dst == "" {
			continue
		}
		frame, err := json.Marshal(h.dispatcher.NotifyStatus(dst, data))
		if err != nil {
			h.logger.Error("websocket: could not encode notification", zap.Error(err))
			return
		}
		client.trySend(frame)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("websocket: status notified", zap.Int("recipients", sent))
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
	for client := range clients {
		client.close()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.src
}

func (c *wsClient) setSource(src string) {
	if src == "" {
		return
	}
	c.mu.Lock()
	c.src = src
	c.mu.Unlock()
}

// enqueue waits for buffer space so responses keep request order.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsClient) trySend(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
	}
}

func (c *wsClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.Error(err))
			} else {
				c.hub.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if !c.handleMessage(message) {
			return
		}
	}
}

func (c *wsClient) handleMessage(data []byte) bool {
	req, err := ParseRequest(data)
	if err != nil {
		c.hub.logger.Warn("websocket: dropping frame", zap.Error(err))
		return true
	}
	c.setSource(req.Src)
	resp := c.hub.dispatcher.Handle(context.Background(), req)
	frame, err := json.Marshal(resp)
	if err != nil {
		c.hub.logger.Error("websocket: could not encode response", zap.String("method", req.Method), zap.Error(err))
		return true
	}
	return c.enqueue(frame)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
