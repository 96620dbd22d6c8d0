package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/agent"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The HTTP API allows any origin; the handshake matches it.
		return true
	},
}

// handleSingleRun upgrades to WebSocket and drives exactly one form-fill run
// over it. Parameter validation happens before the upgrade so bad requests
// fail with a plain 400 instead of a half-open socket.
func (s *Server) handleSingleRun(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	url := query.Get("url")
	if url == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'url' is required")
		return
	}

	raw := query.Get("fields")
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'fields' is required")
		return
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("query parameter 'fields' is not a JSON object: %v", err))
		return
	}
	if len(fields) == 0 {
		s.respondError(w, http.StatusBadRequest, "query parameter 'fields' must name at least one field")
		return
	}

	apiKey := query.Get("api_key")
	if apiKey == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'api_key' is required")
		return
	}

	decider, err := s.decider(r.Context(), apiKey)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		s.logger.Error("WebSocket upgrade failed.", zap.Error(err))
		return
	}

	client := newWSClient(conn, s.logger)
	defer client.close()

	// A read error (including the client closing the tab) cancels the run.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.readPump(cancel)
	go client.pingPump(ctx)

	s.logger.Info("Single run accepted.", zap.String("url", url), zap.Int("fields", len(fields)))

	runner := s.newRunner(decider, client)
	agent.NewSingle(s.pages, runner, s.cfg.Agent, client, s.logger).Run(ctx, url, fields)
}

// wsClient serializes event writes onto one WebSocket connection and keeps
// it alive with the standard ping/pong pumps.
type wsClient struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	return &wsClient{conn: conn, logger: logger.Named("ws")}
}

// Emit sends one event as a JSON text message.
func (c *wsClient) Emit(event schemas.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(event); err != nil {
		c.logger.Debug("WebSocket event write failed.", zap.Error(err))
	}
}

// readPump drains client frames so pongs are processed. The run has no
// client-to-server protocol, so any read error just ends the run.
func (c *wsClient) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket client read error", zap.Error(err))
			}
			return
		}
	}
}

// pingPump keeps the connection alive until the run context ends.
func (c *wsClient) pingPump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// close sends a normal close frame and tears the connection down.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
