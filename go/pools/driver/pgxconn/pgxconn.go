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

// Package pgxconn implements driver.Conn with a native pgx connection,
// registered as the "pgx" factory.
package pgxconn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/multigres/dbpool/go/pools/driver"
)

// Name is the factory name.
const Name = "pgx"

func init() {
	driver.Register(Name, driver.FactoryFunc(Connect))
}

// ParseConfig builds a pgx config from p.
func ParseConfig(p driver.Params) (*pgx.ConnConfig, error) {
	dsn := driver.NewDSNBuilder("postgres").FromParams(p).Param("sslmode", p.SSLMode).Build()
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if p.ConnectTimeout > 0 {
		cfg.ConnectTimeout = p.ConnectTimeout
	}
	return cfg, nil
}

// Connect dials a new pgx connection.
func Connect(ctx context.Context, p driver.Params) (driver.Conn, error) {
	cfg, err := ParseConfig(p)
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}
	return New(conn), nil
}

// Conn wraps a *pgx.Conn.
type Conn struct {
	conn  *pgx.Conn
	begin func(context.Context) (pgx.Tx, error)

	mu         sync.Mutex
	tx         pgx.Tx
	autocommit bool
	broken     bool
}

var _ driver.Conn = (*Conn)(nil)

// New wraps an established pgx connection.
func New(conn *pgx.Conn) *Conn {
	return &Conn{conn: conn, begin: conn.Begin, autocommit: true}
}

// ErrTxLost is returned for statements on a connection whose transaction
// ended while autocommit was off and could not be reopened.
var ErrTxLost = errors.New("pgxconn: transaction lost outside autocommit")

// Raw returns the underlying pgx connection.
func (c *Conn) Raw() *pgx.Conn { return c.conn }

func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.check(c.conn.Ping(ctx))
}

func (c *Conn) IsUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.broken && !c.conn.IsClosed()
}

func (c *Conn) SetAutocommit(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on == c.autocommit {
		return nil
	}
	ctx := context.Background()
	if on {
		if c.tx != nil {
			err := c.tx.Commit(ctx)
			c.tx = nil
			if err != nil {
				c.check(err)
				return errors.Join(err, c.resume(ctx))
			}
		}
		c.autocommit = true
		return nil
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return c.check(err)
	}
	c.tx = tx
	c.autocommit = false
	return nil
}

func (c *Conn) Commit() error {
	return c.finish(func(ctx context.Context, tx pgx.Tx) error { return tx.Commit(ctx) })
}

func (c *Conn) Rollback() error {
	return c.finish(func(ctx context.Context, tx pgx.Tx) error { return tx.Rollback(ctx) })
}

func (c *Conn) finish(end func(context.Context, pgx.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	ctx := context.Background()
	err := end(ctx, c.tx)
	c.tx = nil
	c.check(err)
	return errors.Join(err, c.resume(ctx))
}

// resume opens the next transaction after the previous one ended while
// autocommit is off, or marks the connection broken. Must be called with
// c.mu held.
func (c *Conn) resume(ctx context.Context) error {
	if c.autocommit || c.broken {
		return nil
	}
	tx, err := c.begin(ctx)
	if err != nil {
		c.broken = true
		return err
	}
	c.tx = tx
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx := context.Background()
	var errs []error
	if c.tx != nil {
		if err := c.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			errs = append(errs, err)
		}
		c.tx = nil
	}
	if err := c.conn.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// check must be called with c.mu held.
func (c *Conn) check(err error) error {
	if err != nil && IsConnectionError(err) {
		c.broken = true
	}
	return err
}

// IsConnectionError reports whether err means the connection is unusable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
