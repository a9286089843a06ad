package main

import (
	"chat-relay/contract"
	"chat-relay/infrastructure/http/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and keeps deferred cleanup in one place.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Message store
	repository, err := repositories.Open(config.StoreBackend, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = repository.Close() }()

	// 3. Moderation & search
	moderator, err := buildModerator(config, log)
	if err != nil {
		return exitConfig, err
	}

	index, err := search.NewInMemoryIndex(log)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge index: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge...")
		_ = index.Close()
	}()

	// 4. Router under supervision
	monitoring := observability.NewMonitoringManager(log)
	timeline := sink.NewTimeline(config.TimelineSize)
	router := runtime.NewRouter(log,
		runtime.NewRegistry(),
		repository,
		moderator,
		workers.NewSupervisor(log, config.RestartInterval),
		monitoring,
		runtime.RouterConfig{
			NumberOfWorkers:    config.NumberOfWorkers,
			BufferSize:         config.BufferSize,
			ConnectionBuffer:   config.ConnectionBufferSize,
			MaxMessageLength:   config.MaxMessageLength,
			DetectLanguage:     config.DetectLanguage,
			SinkTimeout:        config.SinkTimeout,
			MetricInterval:     config.MetricInterval,
			ProcessStatsWorker: config.ProcessStats,
		},
		sink.NewSearchSink(index, log),
		timeline,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		_ = router.Start(ctx)
	}()

	// 5. HTTP transport
	chatService := services.NewChatService(log, router, index, monitoring, timeline, config.SearchLimit)
	chatServer := server.NewChatServer(log, chatService, server.Config{
		AllowedOrigins:          config.Origins(),
		MaxMessageSize:          config.MaxMessageSize,
		MaxContentLength:        config.MaxContentLength,
		RateLimitBurst:          config.RateLimitBurst,
		RateLimitRefillInterval: config.RateLimitRefillInterval,
		SSEKeepAlive:            config.SSEKeepAlive,
	})
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           chatServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", config.Address(), "store", config.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 7. Final Cleanup
	// Streams end with the base context and pending submissions get ErrRouterStopped,
	// Shutdown then waits for the remaining requests.
	stop()
	router.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server did not stop in time", "error", err)
	}
	<-routerDone
	log.Info("Program stopped cleanly")

	return code, runErr
}

func buildModerator(config internal.Config, log *slog.Logger) (contract.Moderator, error) {
	if !config.EnableModeration {
		return moderation.NoopModerator{}, nil
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := runtime.NewDefaultCensoredLoader().LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("failed to load censored words: %w", err)
	}
	log.Info("Censored dictionaries loaded", "languages", data.LanguageNames(), "words", len(data.Words))
	moderator, err := moderation.NewModerator(data.Words, charReplacement, log)
	if err != nil {
		return nil, err
	}
	return moderator, nil
}
