// Copyright 2025 Supabase, Inc.
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

// Package driver defines the boundary between the connection pool and a
// database driver: how physical connections are opened, validated, and
// how their transaction state is controlled.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Conn is one physical database connection.
//
// Implementations need not be safe for concurrent use: the pool hands a
// Conn to a single borrower at a time.
type Conn interface {
	// Ping performs a round trip to check that the server is reachable.
	Ping(ctx context.Context) error

	// IsUsable reports whether the connection can still be used. It must not
	// do I/O; it returns false once the driver has seen a fatal error.
	IsUsable() bool

	// Close releases the connection.
	Close() error

	// SetAutocommit switches autocommit mode. Turning it off opens a
	// transaction that lasts until Commit or Rollback.
	SetAutocommit(on bool) error

	Commit() error
	Rollback() error
}

// Params identifies the database a factory connects to.
type Params struct {
	Driver         string            `mapstructure:"driver" yaml:"driver"`
	Host           string            `mapstructure:"host" yaml:"host,omitempty"`
	Port           int               `mapstructure:"port" yaml:"port,omitempty"`
	Database       string            `mapstructure:"database" yaml:"database,omitempty"`
	User           string            `mapstructure:"user" yaml:"user,omitempty"`
	Password       string            `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode        string            `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
	Params         map[string]string `mapstructure:"params" yaml:"params,omitempty"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
}

// Redacted returns a copy of p with the password masked, for logging and
// display.
func (p Params) Redacted() Params {
	if p.Password != "" {
		p.Password = "****"
	}
	return p
}

// Validate checks the fields every network driver needs.
func (p Params) Validate() error {
	if p.Driver == "" {
		return errors.New("driver is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port: %d", p.Port)
	}
	return nil
}

// Factory opens physical connections.
type Factory interface {
	Connect(ctx context.Context, params Params) (Conn, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, params Params) (Conn, error)

// Connect calls f.
func (f FactoryFunc) Connect(ctx context.Context, params Params) (Conn, error) {
	return f(ctx, params)
}
