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

// Package poolconfig holds the settings of a single connection pool and
// merges per-alias option maps over a default record.
package poolconfig

import (
	"errors"
	"fmt"
	"time"
)

// Config is the immutable configuration of one pool.
type Config struct {
	// PreValidate pings a reused connection before handing it out.
	PreValidate bool
	// IdleTimeout closes connections idle for longer. Zero disables it.
	IdleTimeout time.Duration
	// AcquireTimeout bounds how long Acquire waits. Zero leaves only the
	// caller's context as a bound.
	AcquireTimeout time.Duration
	// MaxLifetime recycles connections older than this. Zero disables it.
	MaxLifetime time.Duration

	MinSize     int
	MaxSize     int
	MaxOverflow int

	// StaleRetries is how many failed pre-pings Acquire tolerates before
	// giving up.
	StaleRetries int
	// ReapInterval is the period of the maintenance loop. Zero disables it.
	ReapInterval time.Duration
}

// Defaults returns the built-in default record.
func Defaults() Config {
	return Config{
		PreValidate:  false,
		MaxLifetime:  3600 * time.Second,
		MinSize:      0,
		MaxSize:      10,
		MaxOverflow:  15,
		StaleRetries: 3,
		ReapInterval: 30 * time.Second,
	}
}

// Capacity is the hard bound on live connections.
func (c Config) Capacity() int {
	return c.MaxSize + c.MaxOverflow
}

// Validate checks the invariants between fields.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSize < 1 {
		errs = append(errs, &ConfigError{Key: KeyMaxSize, Value: c.MaxSize, Err: errors.New("must be at least 1")})
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		errs = append(errs, &ConfigError{Key: KeyMinSize, Value: c.MinSize, Err: fmt.Errorf("must be between 0 and max_size (%d)", c.MaxSize)})
	}
	if c.MaxOverflow < 0 {
		errs = append(errs, &ConfigError{Key: KeyMaxOverflow, Value: c.MaxOverflow, Err: errors.New("must not be negative")})
	}
	if c.StaleRetries < 0 {
		errs = append(errs, &ConfigError{Key: KeyStaleRetries, Value: c.StaleRetries, Err: errors.New("must not be negative")})
	}
	for key, d := range map[string]time.Duration{
		KeyAcquireTimeout: c.AcquireTimeout,
		KeyIdleTimeout:    c.IdleTimeout,
		KeyReapInterval:   c.ReapInterval,
		KeyRecycle:        c.MaxLifetime,
	} {
		if d < 0 {
			errs = append(errs, &ConfigError{Key: key, Value: d, Err: errors.New("must not be negative")})
		}
	}
	return errors.Join(errs...)
}

// Options renders c with the canonical option keys, durations in seconds.
func (c Config) Options() map[string]any {
	return map[string]any{
		KeyPrePing:        c.PreValidate,
		KeyIdleTimeout:    c.IdleTimeout.Seconds(),
		KeyAcquireTimeout: c.AcquireTimeout.Seconds(),
		KeyRecycle:        c.MaxLifetime.Seconds(),
		KeyMinSize:        c.MinSize,
		KeyMaxSize:        c.MaxSize,
		KeyMaxOverflow:    c.MaxOverflow,
		KeyStaleRetries:   c.StaleRetries,
		KeyReapInterval:   c.ReapInterval.Seconds(),
	}
}
