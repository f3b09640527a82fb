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

// Package registry maps database aliases to their connection pools and
// creates each pool exactly once.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/multigres/dbpool/go/pools/connpool"
	"github.com/multigres/dbpool/go/pools/driver"
	"github.com/multigres/dbpool/go/pools/poolconfig"
)

// ErrUnknownAlias is returned when disposing an alias that has no pool.
var ErrUnknownAlias = errors.New("no pool for alias")

// Registry owns one pool per alias. Lookups are lock-free; creation and
// disposal are serialized.
type Registry struct {
	defaults poolconfig.Config
	logger   *slog.Logger
	metrics  *connpool.Metrics

	// mu serializes writers. Readers load the snapshot without it.
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]*connpool.Pool]
}

// Option customizes a Registry.
type Option func(*Registry)

// WithDefaults sets the config that per-alias overrides are merged onto.
func WithDefaults(cfg poolconfig.Config) Option {
	return func(r *Registry) { r.defaults = cfg }
}

// WithLogger sets the logger passed to every pool.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics shares m across every pool.
func WithMetrics(m *connpool.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{defaults: poolconfig.Defaults()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	empty := make(map[string]*connpool.Pool)
	r.snapshot.Store(&empty)
	return r
}

func (r *Registry) load() map[string]*connpool.Pool {
	return *r.snapshot.Load()
}

// GetOrCreate returns the pool for alias, creating and opening it on first
// use. factory, params and overrides are only consulted when the pool is
// created. A bad override surfaces as a poolconfig.ConfigError and no pool
// is registered.
//
// The pool is published before its MinSize connections are dialed, so a
// slow database delays only the creating caller.
func (r *Registry) GetOrCreate(ctx context.Context, alias string, factory driver.Factory, params driver.Params, overrides map[string]any) (*connpool.Pool, error) {
	if p, ok := r.load()[alias]; ok {
		return p, nil
	}

	p, created, err := r.create(ctx, alias, factory, params, overrides)
	if err != nil || !created {
		return p, err
	}
	p.Open(ctx)
	return p, nil
}

// create registers a new pool for alias unless another caller got there
// first. created reports whether the returned pool still needs Open.
func (r *Registry) create(ctx context.Context, alias string, factory driver.Factory, params driver.Params, overrides map[string]any) (p *connpool.Pool, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	if p, ok := current[alias]; ok {
		return p, false, nil
	}

	cfg, ignored, err := poolconfig.Merge(r.defaults, overrides)
	if err != nil {
		return nil, false, fmt.Errorf("pool %q: %w", alias, err)
	}
	if len(ignored) > 0 {
		r.logger.WarnContext(ctx, "ignoring unrecognized pool options", "alias", alias, "keys", ignored)
	}
	if factory == nil {
		return nil, false, fmt.Errorf("pool %q: nil connection factory", alias)
	}

	p = connpool.NewPool(alias, cfg, factory, params,
		connpool.WithLogger(r.logger),
		connpool.WithMetrics(r.metrics))

	next := maps.Clone(current)
	next[alias] = p
	r.snapshot.Store(&next)
	return p, true, nil
}

// Get returns the pool for alias if one exists.
func (r *Registry) Get(alias string) (*connpool.Pool, bool) {
	p, ok := r.load()[alias]
	return p, ok
}

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	return slices.Sorted(maps.Keys(r.load()))
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	return len(r.load())
}

// Dispose removes alias and disposes its pool. The next GetOrCreate for
// alias builds a fresh pool.
func (r *Registry) Dispose(ctx context.Context, alias string) error {
	p := r.remove(alias)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return p.Dispose(ctx)
}

func (r *Registry) remove(alias string) *connpool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	p, ok := current[alias]
	if !ok {
		return nil
	}
	next := maps.Clone(current)
	delete(next, alias)
	r.snapshot.Store(&next)
	return p
}

// DisposeAll removes and disposes every pool concurrently.
func (r *Registry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	pools := r.load()
	empty := make(map[string]*connpool.Pool)
	r.snapshot.Store(&empty)
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range pools {
		wg.Go(func() {
			if err := p.Dispose(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Stats returns a snapshot of every pool, sorted by alias.
func (r *Registry) Stats() []connpool.Stats {
	pools := r.load()
	out := make([]connpool.Stats, 0, len(pools))
	for _, alias := range slices.Sorted(maps.Keys(pools)) {
		out = append(out, pools[alias].Stats())
	}
	return out
}
