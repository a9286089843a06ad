package internal

import (
	"chat-relay/repositories"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=3000"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,default=4"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	ProcessStats         bool          `env:"PROCESS_STATS,default=true"`

	StoreBackend     string `env:"STORE_BACKEND,default=memory"`
	MaxMessageLength int    `env:"MAX_MESSAGE_LENGTH,default=2000"`

	EnableModeration bool   `env:"ENABLE_MODERATION,default=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	DetectLanguage   bool   `env:"DETECT_LANGUAGE,default=true"`
	SearchLimit      int    `env:"SEARCH_LIMIT,default=20"`
	TimelineSize     int    `env:"TIMELINE_SIZE,default=20"`

	AllowedOrigins          string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	MaxContentLength        int64         `env:"MAX_CONTENT_LENGTH,default=65536"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	SSEKeepAlive            time.Duration `env:"SSE_KEEPALIVE,default=15s"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
}

// Validate catches values the components would silently misbehave with.
func (c Config) Validate() error {
	if c.NumberOfWorkers <= 0 {
		return fmt.Errorf("NUMBER_OF_WORKERS must be positive, got %d", c.NumberOfWorkers)
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	switch c.StoreBackend {
	case repositories.MemoryBackend, repositories.BadgerBackend:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q",
			repositories.MemoryBackend, repositories.BadgerBackend, c.StoreBackend)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	})
	return lo.Compact(parts)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
