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

// Package sqlconn implements driver.Conn on top of database/sql, with
// factories for postgres (lib/pq), mysql and sqlite.
//
// Each Conn owns a private *sql.DB limited to one connection, and pins that
// connection with db.Conn so transaction state stays on a single session.
package sqlconn

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/multigres/dbpool/go/pools/driver"
)

// ErrTxLost is returned for statements on a session whose transaction
// ended while autocommit was off and could not be reopened.
var ErrTxLost = errors.New("sqlconn: transaction lost outside autocommit")

// Conn is a single pinned database/sql session.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn

	mu         sync.Mutex
	tx         *sql.Tx
	autocommit bool
	broken     bool
	closed     bool
}

var _ driver.Conn = (*Conn)(nil)

// New pins one session of db. db should not be shared: Close closes it.
func New(ctx context.Context, db *sql.DB) (*Conn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Conn{db: db, conn: conn, autocommit: true}, nil
}

// Ping checks the session with a round trip.
func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return sql.ErrConnDone
	}
	return c.check(c.conn.PingContext(ctx))
}

// IsUsable reports whether the session is open and has not seen a fatal
// error.
func (c *Conn) IsUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.broken
}

// Autocommit returns the current mode.
func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autocommit
}

// SetAutocommit switches mode. Disabling it begins a transaction; enabling
// it commits the open one. When that commit fails the mode stays manual
// with a new transaction, or the session is marked broken.
func (c *Conn) SetAutocommit(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return sql.ErrConnDone
	}
	if on == c.autocommit {
		return nil
	}

	if on {
		if c.tx != nil {
			err := c.tx.Commit()
			c.tx = nil
			if err != nil {
				c.check(err)
				return errors.Join(err, c.resume())
			}
		}
		c.autocommit = true
		return nil
	}

	if err := c.begin(); err != nil {
		return err
	}
	c.autocommit = false
	return nil
}

// Commit commits the open transaction and, outside autocommit, starts the
// next one. It is a no-op in autocommit mode.
func (c *Conn) Commit() error {
	return c.finish((*sql.Tx).Commit)
}

// Rollback rolls back the open transaction and, outside autocommit, starts
// the next one. It is a no-op in autocommit mode.
func (c *Conn) Rollback() error {
	return c.finish((*sql.Tx).Rollback)
}

func (c *Conn) finish(end func(*sql.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return sql.ErrConnDone
	}
	if c.tx == nil {
		return nil
	}
	err := end(c.tx)
	c.tx = nil
	c.check(err)
	return errors.Join(err, c.resume())
}

// ExecContext runs a statement in the open transaction, if any.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, sql.ErrConnDone
	}
	if c.tx == nil && !c.autocommit {
		return nil, ErrTxLost
	}
	var (
		res sql.Result
		err error
	)
	if c.tx != nil {
		res, err = c.tx.ExecContext(ctx, query, args...)
	} else {
		res, err = c.conn.ExecContext(ctx, query, args...)
	}
	return res, c.check(err)
}

// QueryRowContext runs a single-row query in the open transaction, if any.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Close rolls back any open transaction and closes the session.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("rollback: %w", err))
		}
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// begin must be called with c.mu held.
func (c *Conn) begin() error {
	tx, err := c.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return c.check(err)
	}
	c.tx = tx
	return nil
}

// resume opens the next transaction after the previous one ended while
// autocommit is off. If it cannot, the session is marked broken: statements
// would otherwise run outside any transaction. Must be called with c.mu held.
func (c *Conn) resume() error {
	if c.autocommit || c.broken {
		return nil
	}
	if err := c.begin(); err != nil {
		c.broken = true
		return err
	}
	return nil
}

// check marks the session broken when err says the connection is gone.
// Must be called with c.mu held.
func (c *Conn) check(err error) error {
	if err != nil && IsConnectionError(err) {
		c.broken = true
	}
	return err
}

// IsConnectionError reports whether err means the session can no longer
// be used.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception. 57P01-57P03: admin shutdown,
		// crash shutdown, cannot connect now.
		code := string(pqErr.Code)
		return pqErr.Code.Class() == "08" || code == "57P01" || code == "57P02" || code == "57P03"
	}
	return false
}
