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

// Package connpool implements a bounded pool of physical database
// connections for one alias, and the Handle through which callers borrow
// them.
//
// A pool holds at most MaxSize+MaxOverflow live connections. Idle
// connections are reused most-recently-returned first. When the pool is at
// capacity, Acquire joins a FIFO waitlist: a released connection is handed
// straight to the oldest waiter, and a freed slot is reserved for it.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/multigres/dbpool/go/pools/driver"
	"github.com/multigres/dbpool/go/pools/poolconfig"
	"github.com/multigres/dbpool/go/tools/timer"
)

// Pool is a connection pool for a single database alias.
type Pool struct {
	alias   string
	config  poolconfig.Config
	factory driver.Factory
	params  driver.Params
	logger  *slog.Logger
	metrics *Metrics

	// mu guards everything below it.
	mu         sync.Mutex
	idle       connStack
	checkedOut map[*Pooled]struct{}
	// size counts idle, checked out, and being-created connections.
	size        int
	wait        waitlist
	closed      bool
	drained     chan struct{}
	maintenance *timer.PeriodicRunner

	created      atomic.Int64
	discarded    atomic.Int64
	stale        atomic.Int64
	waitCount    atomic.Int64
	waitTimeouts atomic.Int64
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the logger. The pool adds an "alias" attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithMetrics records pool activity on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates an empty pool. cfg must already be valid. Call Open to
// prefill it and start maintenance.
func NewPool(alias string, cfg poolconfig.Config, factory driver.Factory, params driver.Params, opts ...Option) *Pool {
	p := &Pool{
		alias:      alias,
		config:     cfg,
		factory:    factory,
		params:     params,
		checkedOut: make(map[*Pooled]struct{}),
		drained:    make(chan struct{}),
	}
	p.wait.init()
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("alias", alias)
	return p
}

// Alias returns the database alias the pool serves.
func (p *Pool) Alias() string { return p.alias }

// Config returns the pool configuration.
func (p *Pool) Config() poolconfig.Config { return p.config }

// Open prefills MinSize connections, best effort, and starts the
// maintenance loop when ReapInterval is set.
func (p *Pool) Open(ctx context.Context) {
	if err := p.fill(ctx); err != nil {
		p.logger.WarnContext(ctx, "prefill incomplete", "min_size", p.config.MinSize, "error", err)
	}

	if p.config.ReapInterval > 0 {
		p.mu.Lock()
		if !p.closed && p.maintenance == nil {
			p.maintenance = timer.NewPeriodicRunner(context.WithoutCancel(ctx), p.config.ReapInterval)
			p.maintenance.Start(p.maintain)
		}
		p.mu.Unlock()
	}

	p.logger.InfoContext(ctx, "pool opened",
		"min_size", p.config.MinSize,
		"max_size", p.config.MaxSize,
		"max_overflow", p.config.MaxOverflow,
		"pre_ping", p.config.PreValidate)
}

// Acquire borrows a connection.
//
// Idle connections are tried first; unusable or over-age ones are
// discarded along the way. With PreValidate, a reused connection is pinged
// and replaced if the ping fails, up to StaleRetries times. If nothing is
// idle and the pool has room, a new connection is opened. Otherwise the
// caller waits in line.
//
// When the deadline passes (AcquireTimeout or ctx's own) the error wraps
// ErrPoolExhausted. When ctx is cancelled the context error is returned.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if d := p.config.AcquireTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d, fmt.Errorf("acquire timeout of %s elapsed", d))
		defer cancel()
	}

	for stale := 0; ; {
		pc, reused, err := p.get(ctx)
		if err != nil {
			return nil, err
		}

		if reused && p.config.PreValidate {
			if err := pc.Conn.Ping(ctx); err != nil {
				p.stale.Add(1)
				p.discardCheckedOut(pc, "stale")
				if ctx.Err() != nil {
					return nil, p.waitError(ctx)
				}
				if stale++; stale > p.config.StaleRetries {
					return nil, fmt.Errorf("%w: pool %q: %w after %d retries: %w",
						ErrPoolExhausted, p.alias, ErrStaleConnection, p.config.StaleRetries, err)
				}
				continue
			}
		}

		p.logger.DebugContext(ctx, "checkout", "conn", pc.id, "reused", reused)
		return newHandle(p, pc), nil
	}
}

// get returns a checked-out connection and whether it was reused.
func (p *Pool) get(ctx context.Context) (*Pooled, bool, error) {
	if ctx.Err() != nil {
		return nil, false, p.waitError(ctx)
	}

	var dead []*Pooled
	defer func() { p.closeAll(dead, "unusable") }()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolDisposed
	}

	for pc := p.idle.Pop(); pc != nil; pc = p.idle.Pop() {
		if !pc.Conn.IsUsable() || p.expired(pc) {
			p.size--
			dead = append(dead, pc)
			continue
		}
		p.checkedOut[pc] = struct{}{}
		pc.lastUsed.update()
		p.mu.Unlock()
		p.metrics.addIdle(p.alias, -len(dead))
		p.metrics.move(p.alias, stateIdle, stateUsed)
		return pc, true, nil
	}
	p.metrics.addIdle(p.alias, -len(dead))

	if p.size < p.config.Capacity() {
		p.size++
		p.mu.Unlock()
		pc, err := p.create(ctx)
		return pc, false, err
	}

	elem := p.wait.enqueue()
	p.waitCount.Add(1)
	p.mu.Unlock()

	start := time.Now()
	var g grant
	select {
	case g = <-elem.Value.ch:
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.wait.remove(elem)
		p.mu.Unlock()
		if !removed {
			// Granted concurrently with the deadline; give it back.
			g = <-elem.Value.ch
			p.returnGrant(g)
		}
		p.wait.recycle(elem)
		return nil, false, p.waitError(ctx)
	}
	p.wait.recycle(elem)
	p.metrics.recordWait(p.alias, time.Since(start))

	switch {
	case g.pc != nil:
		return g.pc, true, nil
	case g.slot:
		pc, err := p.create(ctx)
		return pc, false, err
	default:
		return nil, false, ErrPoolDisposed
	}
}

// returnGrant undoes a grant that arrived too late to be used.
func (p *Pool) returnGrant(g grant) {
	switch {
	case g.pc != nil:
		p.release(g.pc)
	case g.slot:
		p.mu.Lock()
		p.size--
		p.grantSlotLocked()
		p.signalDrainedLocked()
		p.mu.Unlock()
	}
}

// create opens a connection in a slot the caller already reserved and
// checks it out.
func (p *Pool) create(ctx context.Context) (*Pooled, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.size--
		p.grantSlotLocked()
		p.signalDrainedLocked()
		p.mu.Unlock()
		return nil, &ConnectFailedError{Alias: p.alias, Err: err}
	}

	pc := newPooled(p, conn)
	p.mu.Lock()
	if p.closed {
		p.size--
		p.signalDrainedLocked()
		p.mu.Unlock()
		p.closeConn(pc, "disposed")
		return nil, ErrPoolDisposed
	}
	p.checkedOut[pc] = struct{}{}
	p.mu.Unlock()
	p.metrics.move(p.alias, "", stateUsed)
	return pc, nil
}

func (p *Pool) connect(ctx context.Context) (driver.Conn, error) {
	start := time.Now()
	conn, err := p.factory.Connect(ctx, p.params)
	if err != nil {
		p.logger.WarnContext(ctx, "connect failed", "driver", p.params.Driver, "error", err)
		return nil, err
	}
	p.created.Add(1)
	p.metrics.recordCreated(p.alias)
	p.logger.DebugContext(ctx, "connect", "driver", p.params.Driver, "elapsed", time.Since(start))
	return conn, nil
}

// release checks a connection back in. Releasing a connection that is not
// checked out does nothing.
func (p *Pool) release(pc *Pooled) {
	p.mu.Lock()
	if _, ok := p.checkedOut[pc]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.checkedOut, pc)
	pc.lastUsed.update()

	var reason string
	switch {
	case p.closed:
		reason = "disposed"
	case !pc.Conn.IsUsable():
		reason = "unusable"
	case p.expired(pc):
		reason = "recycled"
	case p.wait.len() > 0:
		p.checkedOut[pc] = struct{}{}
		p.wait.grantFront(grant{pc: pc})
		p.mu.Unlock()
		p.logger.Debug("checkin", "conn", pc.id, "handoff", true)
		return
	case p.idle.Len() < p.config.MaxSize:
		p.idle.Push(pc)
		p.mu.Unlock()
		p.metrics.move(p.alias, stateUsed, stateIdle)
		p.logger.Debug("checkin", "conn", pc.id)
		return
	default:
		reason = "overflow"
	}

	p.size--
	p.grantSlotLocked()
	p.signalDrainedLocked()
	p.mu.Unlock()
	p.metrics.move(p.alias, stateUsed, "")
	p.closeConn(pc, reason)
}

// discardCheckedOut closes a checked-out connection without returning it.
func (p *Pool) discardCheckedOut(pc *Pooled, reason string) {
	p.mu.Lock()
	if _, ok := p.checkedOut[pc]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.checkedOut, pc)
	p.size--
	p.grantSlotLocked()
	p.signalDrainedLocked()
	p.mu.Unlock()
	p.metrics.move(p.alias, stateUsed, "")
	p.closeConn(pc, reason)
}

// checkin places a newly opened connection: to a waiter if there is one,
// otherwise idle.
func (p *Pool) checkin(pc *Pooled) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.size--
		p.signalDrainedLocked()
		p.mu.Unlock()
		p.closeConn(pc, "disposed")
	case p.wait.len() > 0:
		p.checkedOut[pc] = struct{}{}
		p.wait.grantFront(grant{pc: pc})
		p.mu.Unlock()
		p.metrics.move(p.alias, "", stateUsed)
	default:
		p.idle.Push(pc)
		p.mu.Unlock()
		p.metrics.addIdle(p.alias, 1)
	}
}

// grantSlotLocked hands a free slot to the oldest waiter, if any.
func (p *Pool) grantSlotLocked() {
	if p.closed || p.wait.len() == 0 || p.size >= p.config.Capacity() {
		return
	}
	p.size++
	p.wait.grantFront(grant{slot: true})
}

func (p *Pool) signalDrainedLocked() {
	if !p.closed || p.size > 0 {
		return
	}
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}

func (p *Pool) expired(pc *Pooled) bool {
	return p.config.MaxLifetime > 0 && pc.Age() > p.config.MaxLifetime
}

func (p *Pool) waitError(ctx context.Context) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	p.waitTimeouts.Add(1)
	p.metrics.recordTimeout(p.alias)
	return fmt.Errorf("%w: pool %q: %w", ErrPoolExhausted, p.alias, context.Cause(ctx))
}

func (p *Pool) closeConn(pc *Pooled, reason string) {
	p.discarded.Add(1)
	if err := pc.Conn.Close(); err != nil {
		p.logger.Warn("close failed", "conn", pc.id, "reason", reason, "error", err)
		return
	}
	p.logger.Debug("discard", "conn", pc.id, "reason", reason)
}

func (p *Pool) closeAll(pcs []*Pooled, reason string) {
	for _, pc := range pcs {
		p.closeConn(pc, reason)
	}
}

// Dispose closes the pool. Waiters fail with ErrPoolDisposed, idle
// connections are closed, and Dispose then waits until every checked-out
// connection has been released (and closed) or ctx ends. Calling it again
// only waits.
func (p *Pool) Dispose(ctx context.Context) error {
	p.mu.Lock()
	first := !p.closed
	var idle []*Pooled
	if first {
		p.closed = true
		for p.wait.grantFront(grant{}) {
		}
		idle = p.idle.Drain()
		p.size -= len(idle)
		p.signalDrainedLocked()
	}
	runner := p.maintenance
	p.maintenance = nil
	checkedOut := len(p.checkedOut)
	p.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
	if first {
		p.metrics.addIdle(p.alias, -len(idle))
		p.closeAll(idle, "disposed")
		p.logger.InfoContext(ctx, "pool disposed", "closed_idle", len(idle), "checked_out", checkedOut)
	}

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %q: waiting for %d checked-out connections: %w", p.alias, checkedOut, ctx.Err())
	}
}

// Disposed reports whether Dispose has been called.
func (p *Pool) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
