package server

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	errorType    = "error"
	noticeBuffer = 16
)

// inboundMessage is what a WebSocket client writes. The sender is always the session identity.
type inboundMessage struct {
	Body      string `json:"body"`
	Message   string `json:"message"`
	Target    string `json:"target"`
	IsPrivate bool   `json:"isPrivate"`
}

func (m inboundMessage) toCommand(sender string) domain.PostMessageCommand {
	body := m.Body
	if body == "" {
		body = m.Message
	}
	return domain.PostMessageCommand{Sender: sender, Target: m.Target, Body: body, IsPrivate: m.IsPrivate}
}

type notice struct {
	Type string       `json:"type"`
	Data noticeDetail `json:"data"`
}

type noticeDetail struct {
	Error string `json:"error"`
}

// wsClient owns one upgraded connection and its session.
type wsClient struct {
	conn         *websocket.Conn
	subscription contract.ISubscription
	server       *ChatServer
	limiter      *rateLimiter
	notices      chan []byte
	log          *slog.Logger
}

// WebSocket opens a session for ?username= and relays it over a WebSocket.
// The session is taken before the upgrade so a refused identity gets a plain HTTP error.
// The connection ends when the client leaves or the server context is cancelled.
func (s *ChatServer) WebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.origins.isAllowed(r) {
		s.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	username := r.URL.Query().Get("username")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subscription, err := s.chatService.Subscribe(ctx, username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer s.chatService.Unsubscribe(subscription)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "identity", username, "error", err)
		return
	}
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}

	client := &wsClient{
		conn:         conn,
		subscription: subscription,
		server:       s,
		limiter:      newRateLimiter(s.cfg.RateLimitBurst, s.cfg.RateLimitRefillInterval),
		notices:      make(chan []byte, noticeBuffer),
		log:          s.log.With("identity", username, "addr", r.RemoteAddr),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writePump(ctx)
	}()
	client.readPump(ctx)
	cancel()
	<-done
}

func (c *wsClient) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if c.limiter != nil && !c.limiter.allow() {
			c.log.Warn("Rate limit exceeded, discarding message")
			c.notify("rate limit exceeded")
			continue
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("Invalid message", "error", err)
			c.notify("invalid JSON message")
			continue
		}
		if _, err := c.server.chatService.SubmitMessage(ctx, msg.toCommand(c.subscription.Identity())); err != nil {
			c.log.Debug("Message refused", "error", err)
			c.notify(err.Error())
		}
	}
}

func (c *wsClient) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.server.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug("Client disconnected", "error", err)
	default:
		c.log.Info("WebSocket read error", "error", err)
	}
}

// notify queues an error notice, dropped when the client is not reading.
func (c *wsClient) notify(reason string) {
	payload, err := json.Marshal(notice{Type: errorType, Data: noticeDetail{Error: reason}})
	if err != nil {
		return
	}
	select {
	case c.notices <- payload:
	default:
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	events := c.subscription.Events()
	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return
		case evt, ok := <-events:
			if !ok {
				c.writeClose()
				return
			}
			if !c.writeEvent(evt) {
				return
			}
		case payload := <-c.notices:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *wsClient) writeEvent(evt event.Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		c.log.Error("Failed to encode event", "error", err)
		return true
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *wsClient) write(messageType int, payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.log.Debug("WebSocket write failed", "error", err)
		return false
	}
	return true
}

func (c *wsClient) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
