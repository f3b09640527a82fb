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

// Stats is a snapshot of a pool's state and lifetime counters.
type Stats struct {
	Alias      string `json:"alias" yaml:"alias"`
	Size       int    `json:"size" yaml:"size"`
	Idle       int    `json:"idle" yaml:"idle"`
	CheckedOut int    `json:"checked_out" yaml:"checked_out"`
	Waiting    int    `json:"waiting" yaml:"waiting"`
	Capacity   int    `json:"capacity" yaml:"capacity"`

	Created      int64 `json:"created" yaml:"created"`
	Discarded    int64 `json:"discarded" yaml:"discarded"`
	Stale        int64 `json:"stale" yaml:"stale"`
	WaitCount    int64 `json:"wait_count" yaml:"wait_count"`
	WaitTimeouts int64 `json:"wait_timeouts" yaml:"wait_timeouts"`
}

// Stats returns a consistent snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Alias:      p.alias,
		Size:       p.size,
		Idle:       p.idle.Len(),
		CheckedOut: len(p.checkedOut),
		Waiting:    p.wait.len(),
		Capacity:   p.config.Capacity(),
	}
	p.mu.Unlock()

	s.Created = p.created.Load()
	s.Discarded = p.discarded.Load()
	s.Stale = p.stale.Load()
	s.WaitCount = p.waitCount.Load()
	s.WaitTimeouts = p.waitTimeouts.Load()
	return s
}
