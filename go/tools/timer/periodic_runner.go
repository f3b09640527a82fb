// Copyright 2019 The Vitess Authors.
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
//
// Modifications Copyright 2025 Supabase, Inc.

// Package timer runs background work on a fixed interval.
package timer

import (
	"context"
	"sync"
	"time"
)

// PeriodicRunner calls a callback every interval until stopped.
//
// The next run is scheduled only after the current one returns, so a slow
// callback never overlaps itself. Stop cancels the callback's context and
// waits for an in-flight run. A stopped runner may be started again.
type PeriodicRunner struct {
	parent   context.Context
	interval time.Duration

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	callback func(ctx context.Context)
	inflight sync.WaitGroup
}

// NewPeriodicRunner returns a stopped runner. Contexts handed to the
// callback derive from ctx.
func NewPeriodicRunner(ctx context.Context, interval time.Duration) *PeriodicRunner {
	return &PeriodicRunner{
		parent:   ctx,
		interval: interval,
	}
}

// Start schedules callback. It returns false if the runner was already
// running, in which case callback is ignored.
func (r *PeriodicRunner) Start(callback func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}
	r.running = true
	r.callback = callback
	r.ctx, r.cancel = context.WithCancel(r.parent)
	r.timer = time.AfterFunc(r.interval, r.run)
	return true
}

// Stop halts the runner and waits for an in-flight callback. Idempotent.
func (r *PeriodicRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.ctx, r.cancel, r.callback = nil, nil, nil
	r.mu.Unlock()

	r.inflight.Wait()
}

// Running reports whether the runner is started.
func (r *PeriodicRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Interval returns the configured interval.
func (r *PeriodicRunner) Interval() time.Duration {
	return r.interval
}

func (r *PeriodicRunner) run() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.inflight.Add(1)
	defer r.inflight.Done()
	callback, ctx := r.callback, r.ctx
	r.mu.Unlock()

	callback(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.timer = time.AfterFunc(r.interval, r.run)
	}
}
