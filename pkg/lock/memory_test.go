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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireConflict(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	first, err := m.TryAcquire(ctx, "pr-merge_octo-ship_1", time.Minute)
	require.NoError(t, err)

	_, err = m.TryAcquire(ctx, "pr-merge_octo-ship_1", time.Minute)
	assert.Equal(t, ErrBusy, err)

	// Other names are unaffected.
	other, err := m.TryAcquire(ctx, "pr-merge_octo-ship_2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release())

	require.NoError(t, first.Release())
	reacquired, err := m.TryAcquire(ctx, "pr-merge_octo-ship_1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, reacquired.Release())
}

func TestTTLExpiry(t *testing.T) {
	m := NewMemoryLocker()
	now := time.Now()
	m.clock = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.TryAcquire(ctx, "summary-octo-ship-1", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	lock, err := m.TryAcquire(ctx, "summary-octo-ship-1", time.Minute)
	require.NoError(t, err, "an expired lock must be acquirable")
	require.NoError(t, lock.Release())
}

func TestAcquireWaits(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	held, err := m.TryAcquire(ctx, "summary-octo-ship-1", time.Minute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		lock, err := m.Acquire(ctx, "summary-octo-ship-1", time.Minute, time.Second)
		if err == nil {
			lock.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, held.Release())
	assert.NoError(t, <-done)
}

func TestAcquireTimesOut(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	_, err := m.TryAcquire(ctx, "summary-octo-ship-1", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "summary-octo-ship-1", time.Minute, 30*time.Millisecond)
	assert.Equal(t, ErrTimeout, err)
}
