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

package connpool

import (
	"sync"

	"github.com/multigres/dbpool/go/pools/driver"
)

// Handle is one logical connection: a physical connection borrowed from a
// pool for a unit of work. Connections are handed out in autocommit mode.
//
// A Handle is meant for a single goroutine, but Close may safely race
// with other calls.
type Handle struct {
	pool *Pool
	pc   *Pooled

	mu         sync.Mutex
	autocommit bool
	// modeFailed is set once SetAutocommit has failed; the connection's
	// session state is then not trusted for reuse.
	modeFailed bool
	closed     bool
}

func newHandle(pool *Pool, pc *Pooled) *Handle {
	return &Handle{pool: pool, pc: pc, autocommit: true}
}

// Conn returns the physical connection. It must not be used after Close.
func (h *Handle) Conn() driver.Conn { return h.pc.Conn }

// ID identifies the physical connection.
func (h *Handle) ID() string { return h.pc.id }

// Alias returns the alias of the owning pool.
func (h *Handle) Alias() string { return h.pool.alias }

// Autocommit returns the last mode successfully set.
func (h *Handle) Autocommit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autocommit
}

// SetAutocommit switches the connection's autocommit mode. On failure the
// recorded mode is left unchanged and the error is an *AutocommitError.
func (h *Handle) SetAutocommit(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if err := h.pc.Conn.SetAutocommit(on); err != nil {
		h.pool.logger.Error("set autocommit failed", "conn", h.pc.id, "autocommit", on, "error", err)
		h.modeFailed = true
		return &AutocommitError{Alias: h.pool.alias, Value: on, Err: err}
	}
	h.autocommit = on
	return nil
}

// Commit commits the current transaction. It does nothing if the
// connection is no longer usable.
func (h *Handle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if !h.pc.Conn.IsUsable() {
		return nil
	}
	return h.pc.Conn.Commit()
}

// Rollback rolls back the current transaction. It does nothing if the
// connection is no longer usable.
func (h *Handle) Rollback() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if !h.pc.Conn.IsUsable() {
		return nil
	}
	return h.pc.Conn.Rollback()
}

// Close returns the connection to its pool. If autocommit is off, the open
// transaction is rolled back and autocommit restored first; failures there
// are logged, and a connection whose mode could not be restored, or whose
// mode change failed earlier, is discarded instead of pooled. Closing twice
// does nothing.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	conn := h.pc.Conn
	if h.modeFailed {
		if !h.autocommit && conn.IsUsable() {
			if err := conn.Rollback(); err != nil {
				h.pool.logger.Warn("rollback on close failed", "conn", h.pc.id, "error", err)
			}
		}
		h.pc.Taint()
		return nil
	}
	if !h.autocommit && conn.IsUsable() {
		if err := conn.Rollback(); err != nil {
			h.pool.logger.Warn("rollback on close failed", "conn", h.pc.id, "error", err)
		}
		if err := conn.SetAutocommit(true); err != nil {
			h.pool.logger.Warn("restoring autocommit on close failed", "conn", h.pc.id, "error", err)
			h.pc.Taint()
			return nil
		}
	}
	h.pc.Recycle()
	return nil
}
