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
	"sync/atomic"
	"time"
)

var monotonicRoot = time.Now()

// monotonicNow returns the time elapsed since monotonicRoot. time.Since
// subtracts monotonic readings only, so wall clock jumps do not matter.
func monotonicNow() time.Duration {
	return time.Since(monotonicRoot)
}

// timestamp is a monotonic point in time that can be read without locks.
type timestamp struct {
	nano atomic.Int64
}

func (t *timestamp) update() {
	t.nano.Store(int64(monotonicNow()))
}

func (t *timestamp) get() time.Duration {
	return time.Duration(t.nano.Load())
}

func (t *timestamp) elapsed() time.Duration {
	return monotonicNow() - t.get()
}
