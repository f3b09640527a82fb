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
	"time"

	"github.com/google/uuid"

	"github.com/multigres/dbpool/go/pools/driver"
)

// Pooled is a physical connection plus the bookkeeping the pool keeps for
// it. While alive it is either idle in the pool or checked out.
type Pooled struct {
	// next links the idle stack. Guarded by the owning pool's mu.
	next *Pooled

	id       string
	created  timestamp
	lastUsed timestamp
	pool     *Pool

	Conn driver.Conn
}

func newPooled(pool *Pool, conn driver.Conn) *Pooled {
	pc := &Pooled{
		id:   uuid.NewString(),
		pool: pool,
		Conn: conn,
	}
	pc.created.update()
	pc.lastUsed.update()
	return pc
}

// ID identifies the physical connection in logs.
func (pc *Pooled) ID() string { return pc.id }

// Age is the time since the connection was opened.
func (pc *Pooled) Age() time.Duration { return pc.created.elapsed() }

// IdleFor is the time since the connection was last checked in or out.
func (pc *Pooled) IdleFor() time.Duration { return pc.lastUsed.elapsed() }

// Recycle returns the connection to its pool. Without a pool it is closed.
func (pc *Pooled) Recycle() {
	if pc.pool == nil {
		_ = pc.Conn.Close()
		return
	}
	pc.pool.release(pc)
}

// Taint removes the connection from its pool and closes it.
func (pc *Pooled) Taint() {
	if pc.pool == nil {
		_ = pc.Conn.Close()
		return
	}
	pc.pool.discardCheckedOut(pc, "tainted")
}
