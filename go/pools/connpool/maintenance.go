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
	"context"

	"golang.org/x/sync/errgroup"
)

// fillConcurrency bounds parallel dials while topping up to MinSize.
const fillConcurrency = 4

// maintain is the periodic maintenance callback.
func (p *Pool) maintain(ctx context.Context) {
	if n := p.reap(); n > 0 {
		p.logger.DebugContext(ctx, "reaped idle connections", "count", n)
	}
	if err := p.fill(ctx); err != nil {
		p.logger.WarnContext(ctx, "failed to restore min_size", "min_size", p.config.MinSize, "error", err)
	}
}

// reap closes idle connections that are unusable, past MaxLifetime, or
// idle for longer than IdleTimeout. Idle timeouts never take the pool below
// MinSize.
func (p *Pool) reap() int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	spare := p.size - p.config.MinSize
	victims := p.idle.RemoveIf(func(pc *Pooled) bool {
		if !pc.Conn.IsUsable() || p.expired(pc) {
			spare--
			return true
		}
		if p.config.IdleTimeout > 0 && spare > 0 && pc.IdleFor() > p.config.IdleTimeout {
			spare--
			return true
		}
		return false
	})
	p.size -= len(victims)
	p.mu.Unlock()

	p.metrics.addIdle(p.alias, -len(victims))
	p.closeAll(victims, "reaped")
	return len(victims)
}

// fill opens connections until the pool holds MinSize. Slots are reserved
// up front so concurrent Acquire calls cannot overshoot capacity.
func (p *Pool) fill(ctx context.Context) error {
	p.mu.Lock()
	need := 0
	if !p.closed {
		need = p.config.MinSize - p.size
	}
	if need <= 0 {
		p.mu.Unlock()
		return nil
	}
	p.size += need
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(fillConcurrency)
	for range need {
		g.Go(func() error {
			conn, err := p.connect(ctx)
			if err != nil {
				p.mu.Lock()
				p.size--
				p.grantSlotLocked()
				p.signalDrainedLocked()
				p.mu.Unlock()
				return err
			}
			p.checkin(newPooled(p, conn))
			return nil
		})
	}
	return g.Wait()
}
