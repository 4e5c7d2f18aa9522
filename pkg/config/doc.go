// Package config loads typed configuration structs from environment
// variables.
//
// Each component declares its tunables as a struct with `env` tags and
// defaults matching the engine's documented behavior (retry caps, backoff
// base, connection limits, retention windows). Load parses the environment
// once per struct type and caches the result for the process lifetime; a
// .env file is honored when present for local development.
//
//	type Config struct {
//		MaxRetries  int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`
//		BackoffBase time.Duration `env:"WEBHOOK_BACKOFF_BASE" envDefault:"1s"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
