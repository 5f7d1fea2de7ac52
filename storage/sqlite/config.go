// Copyright 2025 Poiesic Systems
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


package sqlite

import (
	"errors"
	"strings"
	"time"

	"github.com/poiesic/sdstore/storage"
)

// Config holds configuration for the relational store.
type Config struct {
	// Path is the database file. The WAL and shared-memory files live next to it.
	Path string

	// MaxReaders bounds the read connection pool.
	// Default: 10
	MaxReaders int

	// BusyQuantum is how long a writer sleeps between attempts while the
	// database is locked by another process.
	// Default: 25ms
	BusyQuantum time.Duration

	// BusyWarnInterval is how much accumulated waiting triggers a warning.
	// Default: 250ms
	BusyWarnInterval time.Duration

	// ReaderBusyTimeout is the driver-level busy timeout for read connections.
	// Default: 5s
	ReaderBusyTimeout time.Duration

	// ForeignKeys enables foreign key enforcement.
	// Default: true
	ForeignKeys bool

	// KeyStore supplies the database key spec. Required.
	KeyStore storage.KeyStore

	// AppState tells key resolution whether the process may create a key.
	// Defaults to an active main app.
	AppState storage.AppState
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPath sets the database file path.
func WithPath(path string) ConfigOption {
	return func(c *Config) {
		c.Path = path
	}
}

// WithMaxReaders sets the read pool capacity.
func WithMaxReaders(n int) ConfigOption {
	return func(c *Config) {
		c.MaxReaders = n
	}
}

// WithBusyQuantum sets the sleep between lock attempts.
func WithBusyQuantum(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.BusyQuantum = d
	}
}

// WithBusyWarnInterval sets how often a stuck writer logs a warning.
func WithBusyWarnInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.BusyWarnInterval = d
	}
}

// WithForeignKeys toggles foreign key enforcement.
func WithForeignKeys(enabled bool) ConfigOption {
	return func(c *Config) {
		c.ForeignKeys = enabled
	}
}

// WithKeyStore sets the credential store holding the key spec.
func WithKeyStore(ks storage.KeyStore) ConfigOption {
	return func(c *Config) {
		c.KeyStore = ks
	}
}

// WithAppState sets the process state consulted when the key is missing.
func WithAppState(state storage.AppState) ConfigOption {
	return func(c *Config) {
		c.AppState = state
	}
}

// DefaultConfig returns a Config with the pool and retry defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxReaders:        10,
		BusyQuantum:       25 * time.Millisecond,
		BusyWarnInterval:  250 * time.Millisecond,
		ReaderBusyTimeout: 5 * time.Second,
		ForeignKeys:       true,
		AppState:          activeMainApp{},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithPath("/data/signal.sqlite"),
//	    WithKeyStore(keychain),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("sqlite config: Path is required")
	}
	if c.KeyStore == nil {
		return errors.New("sqlite config: KeyStore is required")
	}
	if c.MaxReaders < 1 {
		return errors.New("sqlite config: MaxReaders must be at least 1")
	}
	if c.BusyQuantum <= 0 {
		return errors.New("sqlite config: BusyQuantum must be positive")
	}
	if c.AppState == nil {
		c.AppState = activeMainApp{}
	}
	return nil
}

type activeMainApp struct{}

func (activeMainApp) IsMainApp() bool { return true }
func (activeMainApp) IsActive() bool  { return true }
