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

// Package retry provides exponential backoff for retry loops, used by the
// pool drivers when dialing a database.
package retry

import (
	"context"
	"time"
)

// Retry tracks the backoff state of one retry loop. It is not safe for use
// by several loops at once; create one per operation.
//
//	r := retry.New(50*time.Millisecond, 2*time.Second)
//	for attempt, err := range r.Attempts(ctx) {
//	    if err != nil {
//	        return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
//	    }
//	    if conn, err := dial(ctx); err == nil {
//	        return conn, nil
//	    }
//	}
type Retry struct {
	initialDelay bool
	backoff      backoff
	attempt      int
	timer        Timer
}

// Option configures a Retry.
type Option func(*Retry)

// WithInitialDelay waits before the first attempt too. Use it when the
// caller has already tried once.
func WithInitialDelay() Option {
	return func(r *Retry) { r.initialDelay = true }
}

// WithTimer replaces the wall-clock timer. Tests use it to avoid sleeping.
func WithTimer(t Timer) Option {
	return func(r *Retry) { r.timer = t }
}

// New returns a Retry with full-jitter exponential backoff between
// baseDelay and maxDelay. It panics on invalid delays, which are
// programming errors.
func New(baseDelay, maxDelay time.Duration, opts ...Option) *Retry {
	if baseDelay <= 0 {
		panic("retry: baseDelay must be positive")
	}
	if maxDelay <= 0 {
		panic("retry: maxDelay must be positive")
	}
	if baseDelay > maxDelay {
		panic("retry: baseDelay cannot be greater than maxDelay")
	}

	r := &Retry{
		backoff: newFullJitter(baseDelay, maxDelay),
		timer:   realTimer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartAttempt waits out the backoff delay for the next attempt. The first
// call returns immediately unless WithInitialDelay was given. It returns
// the context error if ctx ends first.
func (r *Retry) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.attempt > 0 || r.initialDelay {
		select {
		case <-r.timer.After(r.backoff.nextDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.attempt++
	return nil
}

// Attempt returns the number of attempts started so far.
func (r *Retry) Attempt() int {
	return r.attempt
}

// Reset restarts the backoff from baseDelay. The attempt counter keeps
// counting.
func (r *Retry) Reset() {
	r.backoff.reset()
}

// Attempts returns a range-over-func iterator yielding (attempt, err).
// err is non-nil only on the final iteration, when ctx has ended.
func (r *Retry) Attempts(ctx context.Context) func(yield func(int, error) bool) {
	return func(yield func(int, error) bool) {
		for {
			err := r.StartAttempt(ctx)
			if !yield(r.attempt, err) || err != nil {
				return
			}
		}
	}
}

// Timer abstracts time.After.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
