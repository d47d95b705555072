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

package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local Locker. Tests and single-instance
// deployments use it in place of redis.
type MemoryLocker struct {
	mut   sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewMemoryLocker builds an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  map[string]time.Time{},
		clock: time.Now,
	}
}

type memoryLock struct {
	locker *MemoryLocker
	name   string
}

func (l *memoryLock) Release() error {
	l.locker.mut.Lock()
	defer l.locker.mut.Unlock()
	delete(l.locker.held, l.name)
	return nil
}

func (m *MemoryLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	m.mut.Lock()
	defer m.mut.Unlock()
	now := m.clock()
	if expiry, ok := m.held[name]; ok && now.Before(expiry) {
		return nil, ErrBusy
	}
	m.held[name] = now.Add(ttl)
	return &memoryLock{locker: m, name: name}, nil
}

func (m *MemoryLocker) Acquire(ctx context.Context, name string, ttl, timeout time.Duration) (Lock, error) {
	deadline := m.clock().Add(timeout)
	for {
		lock, err := m.TryAcquire(ctx, name, ttl)
		if err == nil {
			return lock, nil
		}
		if m.clock().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MemoryLocker) Ping() error { return nil }

var _ Locker = (*MemoryLocker)(nil)
