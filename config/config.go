/*
 *	flowrpc runs workflow and activity code on behalf of an orchestration host.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package config loads the configuration of a worker process
// from FLOWRPC_* environment variables.
package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable name
const Prefix = "FLOWRPC_"

// Transport kinds
const (
	TransportPipe      = "pipe"
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config is the configuration of a worker process
type Config struct {
	// Codec is the name of the wire codec, msgpack or json
	Codec string `env:"CODEC" envDefault:"msgpack"`
	// Environment is used by requests without an env header
	Environment string `env:"ENV" envDefault:"workflow"`
	// TaskQueues lists the task queues to create workers for
	TaskQueues []string `env:"TASK_QUEUES" envSeparator:"," envDefault:"default"`
	// Identity is reported to the host, a random one is used if empty
	Identity string `env:"IDENTITY"`

	Transport TransportConfig `envPrefix:"TRANSPORT_"`
	NATS      NATSConfig      `envPrefix:"NATS_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

type TransportConfig struct {
	// Kind is one of pipe, websocket or nats
	Kind string `env:"KIND" envDefault:"pipe"`
	// Addr is the listen address of the websocket transport
	Addr string `env:"ADDR" envDefault:"localhost:9090"`
}

type NATSConfig struct {
	URL           string        `env:"URL"`
	Host          string        `env:"HOST"           envDefault:"localhost"`
	Port          string        `env:"PORT"           envDefault:"4222"`
	Subject       string        `env:"SUBJECT"        envDefault:"flowrpc.worker"`
	Queue         string        `env:"QUEUE"`
	ClientName    string        `env:"CLIENT_NAME"    envDefault:"flowrpc-worker"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT"  envDefault:"30s"`
	MaxReconnects int           `env:"MAX_RECONNECTS" envDefault:"-1"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
	// File enables logging to a rotated file in addition to stderr
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"28"`
	Compress   bool   `env:"COMPRESS"`
}

// Load loads the configuration from the process environment
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom loads the configuration from the given variables
// instead of the process environment
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, err
	}

	// Compose URL if not provided explicitly.
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be checked by parsing alone
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportPipe, TransportWebSocket, TransportNATS:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if len(c.TaskQueues) == 0 {
		return fmt.Errorf("at least one task queue is required")
	}
	return nil
}
