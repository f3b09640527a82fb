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
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimer completes immediately and records the requested delays.
type fakeTimer struct {
	delays []time.Duration
}

func (f *fakeTimer) After(d time.Duration) <-chan time.Time {
	f.delays = append(f.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockingTimer never fires.
type blockingTimer struct{}

func (blockingTimer) After(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func noJitter(r *Retry) {
	r.backoff.(*fullJitter).noJitter = true
}

func TestNewPanicsOnInvalidDelays(t *testing.T) {
	tests := []struct {
		name      string
		base, max time.Duration
	}{
		{"zero base", 0, time.Second},
		{"negative max", time.Millisecond, -1},
		{"base above max", time.Second, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { New(tt.base, tt.max) })
		})
	}
}

func TestStartAttempt_FirstAttemptIsImmediate(t *testing.T) {
	ft := &fakeTimer{}
	r := New(10*time.Millisecond, time.Second, WithTimer(ft))

	require.NoError(t, r.StartAttempt(context.Background()))
	assert.Equal(t, 1, r.Attempt())
	assert.Empty(t, ft.delays)
}

func TestStartAttempt_InitialDelay(t *testing.T) {
	ft := &fakeTimer{}
	r := New(10*time.Millisecond, time.Second, WithTimer(ft), WithInitialDelay(), noJitter)

	require.NoError(t, r.StartAttempt(context.Background()))
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, ft.delays)
}

func TestStartAttempt_ExponentialAndCapped(t *testing.T) {
	ft := &fakeTimer{}
	r := New(10*time.Millisecond, 50*time.Millisecond, WithTimer(ft), noJitter)

	for range 6 {
		require.NoError(t, r.StartAttempt(context.Background()))
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}, ft.delays)
	assert.Equal(t, 6, r.Attempt())
}

func TestReset(t *testing.T) {
	ft := &fakeTimer{}
	r := New(10*time.Millisecond, time.Second, WithTimer(ft), noJitter)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, r.StartAttempt(ctx))
	}
	r.Reset()
	require.NoError(t, r.StartAttempt(ctx))

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 10 * time.Millisecond}, ft.delays)
	assert.Equal(t, 4, r.Attempt(), "attempt counter is not reset")
}

func TestStartAttempt_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(time.Millisecond, time.Second)
	assert.ErrorIs(t, r.StartAttempt(ctx), context.Canceled)
	assert.Equal(t, 0, r.Attempt())
}

func TestStartAttempt_ContextEndsDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := New(time.Millisecond, time.Second, WithTimer(blockingTimer{}))
	require.NoError(t, r.StartAttempt(ctx))
	assert.ErrorIs(t, r.StartAttempt(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, r.Attempt())
}

func TestAttempts(t *testing.T) {
	ft := &fakeTimer{}
	r := New(time.Millisecond, time.Second, WithTimer(ft))

	var seen []int
	for attempt, err := range r.Attempts(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, attempt)
		if attempt == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Len(t, ft.delays, 2)
}

func TestAttempts_StopsOnContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(time.Millisecond, time.Second, WithTimer(&fakeTimer{}))

	var lastErr error
	iterations := 0
	for _, err := range r.Attempts(ctx) {
		iterations++
		lastErr = err
		if iterations == 2 {
			cancel()
		}
	}
	assert.ErrorIs(t, lastErr, context.Canceled)
	assert.Equal(t, 3, iterations)
}

func TestFullJitterWithinBounds(t *testing.T) {
	f := newFullJitter(10*time.Millisecond, 100*time.Millisecond)
	f.rng = rand.New(rand.NewPCG(1, 2))

	for i := range 20 {
		upper := min(10*time.Millisecond<<i, 100*time.Millisecond)
		d := f.nextDelay()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, upper)
	}
}

func TestFullJitterNoOverflow(t *testing.T) {
	f := newFullJitter(time.Hour, 24*time.Hour)
	f.noJitter = true
	f.attempt = 100

	assert.Equal(t, 24*time.Hour, f.nextDelay())
}
