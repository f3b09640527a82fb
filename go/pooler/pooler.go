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

// Package pooler is the entry point an ORM uses: it turns an alias into a
// pooled connection handle, creating the alias's pool on first use.
package pooler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/multigres/dbpool/go/pools/connpool"
	"github.com/multigres/dbpool/go/pools/driver"
	"github.com/multigres/dbpool/go/pools/registry"
	"github.com/multigres/dbpool/go/tools/pgpass"
	"github.com/multigres/dbpool/go/tools/viperutil"

	// Register the built-in factories.
	_ "github.com/multigres/dbpool/go/pools/driver/pgxconn"
	_ "github.com/multigres/dbpool/go/pools/driver/sqlconn"
)

// ErrUnknownAlias is returned for an alias missing from the settings.
var ErrUnknownAlias = errors.New("unknown database alias")

// Pooler hands out pooled connections by alias.
type Pooler struct {
	registry *registry.Registry
	logger   *slog.Logger
	retry    driver.RetryPolicy
	lookup   func(name string) (driver.Factory, error)
	regOpts  []registry.Option
	fs       afero.Fs

	mu      sync.RWMutex
	aliases map[string]AliasSettings
}

// Option customizes a Pooler.
type Option func(*Pooler)

// WithLogger sets the logger for the pooler and its pools.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pooler) { p.logger = logger }
}

// WithRetryPolicy retries failed dials of new physical connections.
func WithRetryPolicy(policy driver.RetryPolicy) Option {
	return func(p *Pooler) { p.retry = policy }
}

// WithRegistryOptions passes options, such as pool defaults and metrics,
// to the underlying registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(p *Pooler) { p.regOpts = append(p.regOpts, opts...) }
}

// WithFactoryLookup replaces driver.Lookup for resolving driver names.
func WithFactoryLookup(lookup func(name string) (driver.Factory, error)) Option {
	return func(p *Pooler) { p.lookup = lookup }
}

// WithFs sets the filesystem password files are read from.
func WithFs(fs afero.Fs) Option {
	return func(p *Pooler) { p.fs = fs }
}

// New creates a pooler serving aliases.
func New(aliases map[string]AliasSettings, opts ...Option) *Pooler {
	p := &Pooler{
		lookup:  driver.Lookup,
		fs:      afero.NewOsFs(),
		aliases: maps.Clone(aliases),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.aliases == nil {
		p.aliases = make(map[string]AliasSettings)
	}
	p.registry = registry.New(append([]registry.Option{registry.WithLogger(p.logger)}, p.regOpts...)...)
	return p
}

// Load reads the config file described by vc into reg and builds a pooler
// from it: pool_defaults becomes the default pool config and databases
// the alias settings. When the config is watched, alias settings are
// reloaded on change; pools that already exist keep their settings until
// disposed.
func Load(reg *viperutil.Registry, vc *viperutil.ViperConfig, opts ...Option) (*Pooler, error) {
	var loaded atomic.Pointer[Pooler]
	onChange := func(fsnotify.Event) {
		p := loaded.Load()
		if p == nil {
			return
		}
		if err := p.Reload(reg); err != nil {
			p.logger.Error("reloading alias settings failed", "error", err)
		}
	}
	if err := vc.LoadConfig(reg, onChange); err != nil {
		return nil, err
	}

	defaults, ignored, err := LoadDefaults(reg)
	if err != nil {
		return nil, err
	}
	p := New(nil, append([]Option{WithRegistryOptions(registry.WithDefaults(defaults))}, opts...)...)
	if len(ignored) > 0 {
		p.logger.Warn("ignoring unrecognized pool options", "section", poolDefaultsKey, "keys", ignored)
	}
	if err := p.Reload(reg); err != nil {
		return nil, err
	}
	loaded.Store(p)
	return p, nil
}

// Reload replaces the alias settings with those in reg.
func (p *Pooler) Reload(reg *viperutil.Registry) error {
	aliases, err := LoadAliases(reg)
	if err != nil {
		return err
	}
	p.SetAliases(aliases)
	p.logger.Info("alias settings loaded", "aliases", slices.Sorted(maps.Keys(aliases)))
	return nil
}

// SetAliases replaces the alias settings.
func (p *Pooler) SetAliases(aliases map[string]AliasSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aliases = maps.Clone(aliases)
}

// Aliases returns the configured aliases, sorted.
func (p *Pooler) Aliases() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.aliases))
}

// Settings returns the settings of alias.
func (p *Pooler) Settings(alias string) (AliasSettings, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.aliases[alias]
	return s, ok
}

// Registry exposes the pool registry, for example to export its stats.
func (p *Pooler) Registry() *registry.Registry {
	return p.registry
}

// Pool returns the pool for alias, creating it on first use.
func (p *Pooler) Pool(ctx context.Context, alias string) (*connpool.Pool, error) {
	if pool, ok := p.registry.Get(alias); ok {
		return pool, nil
	}

	settings, ok := p.Settings(alias)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("alias %q: %w", alias, err)
	}
	factory, err := p.lookup(settings.Driver)
	if err != nil {
		return nil, fmt.Errorf("alias %q: %w", alias, err)
	}
	params, err := p.resolvePassword(settings)
	if err != nil {
		return nil, fmt.Errorf("alias %q: %w", alias, err)
	}
	factory = driver.WithRetry(factory, p.retry, p.logger)
	return p.registry.GetOrCreate(ctx, alias, factory, params, settings.PoolOptions)
}

// resolvePassword fills in the password from the alias's password file.
func (p *Pooler) resolvePassword(s AliasSettings) (driver.Params, error) {
	params := s.Params
	if params.Password != "" || s.PassFile == "" {
		return params, nil
	}
	pf, err := pgpass.Load(p.fs, s.PassFile)
	if err != nil {
		return params, err
	}
	if pw, ok := pgpass.Lookup(pf, params.Host, params.Port, params.Database, params.User); ok {
		params.Password = pw
	} else {
		p.logger.Warn("no password file entry matches", "passfile", s.PassFile, "host", params.Host, "user", params.User)
	}
	return params, nil
}

// GetConnection borrows a connection for alias.
func (p *Pooler) GetConnection(ctx context.Context, alias string) (*connpool.Handle, error) {
	pool, err := p.Pool(ctx, alias)
	if err != nil {
		return nil, err
	}
	return pool.Acquire(ctx)
}

// CloseConnection returns h to its pool.
func (p *Pooler) CloseConnection(h *connpool.Handle) error {
	return h.Close()
}

// SetAutocommit switches h's autocommit mode.
func (p *Pooler) SetAutocommit(h *connpool.Handle, on bool) error {
	return h.SetAutocommit(on)
}

// Commit commits h's transaction.
func (p *Pooler) Commit(h *connpool.Handle) error {
	return h.Commit()
}

// Rollback rolls back h's transaction.
func (p *Pooler) Rollback(h *connpool.Handle) error {
	return h.Rollback()
}

// DisposePool closes the pool of alias, if it has one, so the database can
// be dropped or recreated. The next GetConnection builds a new pool.
func (p *Pooler) DisposePool(ctx context.Context, alias string) error {
	err := p.registry.Dispose(ctx, alias)
	if errors.Is(err, registry.ErrUnknownAlias) {
		return nil
	}
	return err
}

// Close disposes every pool.
func (p *Pooler) Close(ctx context.Context) error {
	return p.registry.DisposeAll(ctx)
}

// Stats returns a snapshot of every pool.
func (p *Pooler) Stats() []connpool.Stats {
	return p.registry.Stats()
}
