// Package server exposes the relay over HTTP: a Server-Sent Events stream,
// a WebSocket endpoint and the JSON endpoints around them.
package server

import (
	"chat-relay/services"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

//go:embed static/*
var staticFolder embed.FS

type Config struct {
	AllowedOrigins          []string
	MaxMessageSize          int64
	MaxContentLength        int64
	RateLimitBurst          int
	RateLimitRefillInterval time.Duration
	SSEKeepAlive            time.Duration
}

type ChatServer struct {
	chatService services.IChatService
	log         *slog.Logger
	cfg         Config
	origins     *originPolicy
	upgrader    websocket.Upgrader
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, cfg Config) *ChatServer {
	if cfg.SSEKeepAlive <= 0 {
		cfg.SSEKeepAlive = 15 * time.Second
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 1 << 16
	}
	s := &ChatServer{
		chatService: chatService,
		log:         log,
		cfg:         cfg,
		origins:     newOriginPolicy(log, cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Routes builds the HTTP router of the relay.
func (s *ChatServer) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/events", s.Events).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.WebSocket).Methods(http.MethodGet)
	r.HandleFunc("/send-message", s.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/history", s.History).Methods(http.MethodGet)
	r.HandleFunc("/search", s.Search).Methods(http.MethodGet)
	r.HandleFunc("/claim", s.Claim).Methods(http.MethodPost)
	r.HandleFunc("/presence", s.Presence).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.Stats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	static, err := fs.Sub(staticFolder, "static")
	if err != nil {
		s.log.Error("Static page unavailable", "error", err)
		return r
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)
	return r
}
