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
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "towline:lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// RedisLocker implements Locker on a redis server with SET NX PX.
type RedisLocker struct {
	pool *redis.Pool
}

// NewRedisLocker connects a locker to the redis server at address.
func NewRedisLocker(address string) *RedisLocker {
	return &RedisLocker{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", address)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

type redisLock struct {
	locker *RedisLocker
	name   string
	token  string
}

func (l *redisLock) Release() error {
	conn := l.locker.pool.Get()
	defer conn.Close()
	if _, err := releaseScript.Do(conn, keyPrefix+l.name, l.token); err != nil {
		return fmt.Errorf("releasing lock %q: %w", l.name, err)
	}
	return nil
}

func (r *RedisLocker) tryAcquire(conn redis.Conn, name string, ttl time.Duration) (Lock, error) {
	token := uuid.New().String()
	reply, err := redis.String(conn.Do("SET", keyPrefix+name, token, "NX", "PX", int64(ttl/time.Millisecond)))
	if err == redis.ErrNil {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	if reply != "OK" {
		return nil, ErrBusy
	}
	return &redisLock{locker: r, name: name, token: token}, nil
}

func (r *RedisLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to lock service: %w", err)
	}
	defer conn.Close()
	return r.tryAcquire(conn, name, ttl)
}

func (r *RedisLocker) Acquire(ctx context.Context, name string, ttl, timeout time.Duration) (Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		lock, err := r.TryAcquire(ctx, name, ttl)
		if err == nil {
			return lock, nil
		}
		if err != ErrBusy {
			return nil, err
		}
		if time.Now().After(deadline) {
			logrus.WithField("lock", name).Debug("Gave up waiting for lock.")
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (r *RedisLocker) Ping() error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

var _ Locker = (*RedisLocker)(nil)
