/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package lock provides the named distributed lock used to serialize
// summary-comment updates and auto-merge attempts. Locks expire after their
// TTL so a crashed holder cannot wedge a pull request forever.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrBusy is returned by TryAcquire when the lock is held elsewhere. Callers
// treat it as "skip this pass", not as a failure.
var ErrBusy = errors.New("lock is held elsewhere")

// ErrTimeout is returned by Acquire when the wait deadline elapses before
// the lock frees up.
var ErrTimeout = errors.New("timed out waiting for lock")

// Lock is a held named lock. Release must be called on every exit path.
type Lock interface {
	Release() error
}

// Locker hands out named locks.
type Locker interface {
	// TryAcquire takes the lock if it is free, or fails fast with ErrBusy.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
	// Acquire waits up to timeout for the lock, failing with ErrTimeout.
	Acquire(ctx context.Context, name string, ttl, timeout time.Duration) (Lock, error)
	// Ping reports whether the lock service is reachable.
	Ping() error
}
