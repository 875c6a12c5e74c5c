// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the bloodbank service configuration.
//
// Configuration is read from an optional YAML file and then overlaid with
// environment variables, so deployments can ship a base file and override
// individual settings per environment. All fields have sensible defaults;
// a fully empty configuration is valid for local development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for all bloodbank processes.
type Config struct {
	// ServiceName identifies this service in logs and health responses.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// Environment is a free-form deployment environment label (dev, prod, ...).
	Environment string `yaml:"environment" env:"ENVIRONMENT"`

	Logging LoggingConfig `yaml:"logging"`
	Rabbit  RabbitConfig  `yaml:"rabbit"`
	Redis   RedisConfig   `yaml:"redis"`
	HTTP    HTTPConfig    `yaml:"http"`
	Schema  SchemaConfig  `yaml:"schema"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of ERROR, WARNING, INFO, DEBUG, TRACE (case-insensitive).
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// RabbitConfig configures the broker connection and the topic exchange.
type RabbitConfig struct {
	// URL is the AMQP connection URL, including credentials.
	// Never log this value directly; use RedactURL.
	URL string `yaml:"url" env:"RABBIT_URL"`

	// ExchangeName is the durable topic exchange all events flow through.
	ExchangeName string `yaml:"exchange_name" env:"EXCHANGE_NAME"`

	// PublishTimeout bounds a single publish operation, as a duration string.
	PublishTimeout string `yaml:"publish_timeout" env:"RABBIT_PUBLISH_TIMEOUT"`
}

// RedisConfig configures the correlation tracking store.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`

	// CorrelationTTLDays bounds how long correlation edges are retained.
	CorrelationTTLDays int `yaml:"correlation_ttl_days" env:"CORRELATION_TTL_DAYS"`

	// EnableCorrelationTracking toggles the whole correlation subsystem.
	// When false, deterministic event-id generation on the bus is also
	// unavailable (the two features share one operational flag).
	EnableCorrelationTracking bool `yaml:"enable_correlation_tracking" env:"ENABLE_CORRELATION_TRACKING"`
}

// Addr returns the host:port address of the Redis server.
func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// CorrelationTTL returns the correlation retention window as a duration.
func (r *RedisConfig) CorrelationTTL() time.Duration {
	days := r.CorrelationTTLDays
	if days <= 0 {
		days = DefaultCorrelationTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST"`
	Port int    `yaml:"port" env:"HTTP_PORT"`
}

// Addr returns the host:port listen address for the HTTP server.
func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// SchemaConfig configures payload schema validation.
type SchemaConfig struct {
	// Dir is the root of the schema repository checkout. Empty disables
	// validation entirely.
	Dir string `yaml:"dir" env:"SCHEMA_DIR"`

	// Strict rejects events whose schema cannot be found. When false,
	// missing schemas are allowed through (permissive mode).
	Strict bool `yaml:"strict" env:"SCHEMA_STRICT"`
}

// GetPublishTimeout returns the configured publish timeout
// or the default if not specified or invalid.
func (r *RabbitConfig) GetPublishTimeout() time.Duration {
	if r.PublishTimeout != "" {
		if duration, err := time.ParseDuration(r.PublishTimeout); err == nil {
			return duration
		}
	}
	return DefaultPublishTimeout
}

// Load reads the configuration from the given YAML file (optional; empty path
// skips the file), applies environment variable overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	SetDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would only fail later at
// runtime. It reports caller-input errors; reachability of the broker or the
// store is deliberately not checked here.
func Validate(cfg *Config) error {
	if cfg.Rabbit.ExchangeName == "" {
		return fmt.Errorf("rabbit.exchange_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", cfg.HTTP.Port)
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("redis.port %d out of range", cfg.Redis.Port)
	}
	if cfg.Redis.CorrelationTTLDays < 0 {
		return fmt.Errorf("redis.correlation_ttl_days must not be negative")
	}
	if cfg.Rabbit.PublishTimeout != "" {
		if _, err := time.ParseDuration(cfg.Rabbit.PublishTimeout); err != nil {
			return fmt.Errorf("rabbit.publish_timeout: %w", err)
		}
	}
	return nil
}
