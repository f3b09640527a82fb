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
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is returned when no connection became available
	// before the acquire deadline.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrStaleConnection is wrapped into ErrPoolExhausted when every
	// pre-ping retry found a dead connection.
	ErrStaleConnection = errors.New("stale connection")

	// ErrPoolDisposed is returned when acquiring from a disposed pool.
	ErrPoolDisposed = errors.New("connection pool disposed")

	// ErrHandleClosed is returned by operations on a closed Handle.
	ErrHandleClosed = errors.New("connection handle closed")

	// ErrConnectFailed matches every ConnectFailedError.
	ErrConnectFailed = errors.New("connect failed")

	// ErrAutocommit matches every AutocommitError.
	ErrAutocommit = errors.New("set autocommit failed")
)

// ConnectFailedError wraps a factory error.
type ConnectFailedError struct {
	Alias string
	Err   error
}

func (e *ConnectFailedError) Error() string {
	return fmt.Sprintf("pool %q: connect failed: %v", e.Alias, e.Err)
}

func (e *ConnectFailedError) Unwrap() error { return e.Err }

func (e *ConnectFailedError) Is(target error) bool { return target == ErrConnectFailed }

// AutocommitError reports a failed autocommit switch.
type AutocommitError struct {
	Alias string
	Value bool
	Err   error
}

func (e *AutocommitError) Error() string {
	return fmt.Sprintf("pool %q: set autocommit=%t: %v", e.Alias, e.Value, e.Err)
}

func (e *AutocommitError) Unwrap() error { return e.Err }

func (e *AutocommitError) Is(target error) bool { return target == ErrAutocommit }
