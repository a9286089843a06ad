package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerURL string        `envconfig:"CHATCTL_SERVER_URL" default:"http://localhost:3000"`
	Timeout   time.Duration `envconfig:"CHATCTL_TIMEOUT" default:"5s"`
	// CHATCTL_COLOURS enables colorized output for better readability
	Colours bool `envconfig:"CHATCTL_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
