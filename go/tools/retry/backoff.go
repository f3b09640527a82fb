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

package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// backoff computes the delay before the next attempt.
// Implementations must be safe for concurrent nextDelay/reset calls.
type backoff interface {
	nextDelay() time.Duration
	reset()
}

// fullJitter is exponential backoff with full jitter:
// sleep = random_between(0, min(maxDelay, baseDelay * 2^attempt)).
type fullJitter struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	rng       *rand.Rand
	noJitter  bool

	mu      sync.Mutex
	attempt int
}

func newFullJitter(baseDelay, maxDelay time.Duration) *fullJitter {
	seed := uint64(time.Now().UnixNano())
	return &fullJitter{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		rng:       rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

func (f *fullJitter) nextDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Shifting more than 62 bits would overflow int64.
	shift := min(f.attempt, 62)
	mult := int64(1) << shift

	delay := f.maxDelay
	if base := int64(f.baseDelay); mult <= math.MaxInt64/base {
		delay = min(time.Duration(base*mult), f.maxDelay)
	}

	if !f.noJitter {
		delay = time.Duration(float64(delay) * f.rng.Float64())
	}
	f.attempt++
	return delay
}

func (f *fullJitter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempt = 0
}
