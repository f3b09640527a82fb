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

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/multigres/dbpool/go/tools/retry"
)

// RetryPolicy bounds how a factory retries failed dials.
type RetryPolicy struct {
	// Attempts is the total number of dials, including the first. Values
	// below 1 mean a single attempt.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// WithRetry wraps f so that a failed Connect is retried with jittered
// exponential backoff. The context bounds the whole sequence.
func WithRetry(f Factory, policy RetryPolicy, logger *slog.Logger) Factory {
	if policy.Attempts <= 1 {
		return f
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 50 * time.Millisecond
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}

	return FactoryFunc(func(ctx context.Context, params Params) (Conn, error) {
		r := retry.New(policy.BaseDelay, policy.MaxDelay)
		var lastErr error
		for attempt, err := range r.Attempts(ctx) {
			if err != nil {
				if lastErr == nil {
					return nil, err
				}
				return nil, fmt.Errorf("connect interrupted after %d attempts: %w", attempt, lastErr)
			}

			conn, err := f.Connect(ctx, params)
			if err == nil {
				return conn, nil
			}
			lastErr = err
			logger.DebugContext(ctx, "connect attempt failed", "driver", params.Driver, "attempt", attempt, "error", err)
			if attempt >= policy.Attempts {
				break
			}
		}
		return nil, fmt.Errorf("connect failed after %d attempts: %w", policy.Attempts, lastErr)
	})
}
