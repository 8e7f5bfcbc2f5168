// Package lock provides keyed mutual exclusion, either in-process or across
// instances through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrNotObtained is returned when the key stays held for the whole retry budget.
var ErrNotObtained = errors.New("lock not obtained")

// Handle is a held lock.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive handles per key.
type Locker interface {
	Obtain(ctx context.Context, key string) (Handle, error)
}

// RedisOptions tunes the distributed locker.
type RedisOptions struct {
	TTL        time.Duration
	RetryEvery time.Duration
	MaxRetries int
}

// RedisLocker implements Locker on top of bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	opts   RedisOptions
}

// NewRedisLocker wraps a go-redis client. prefix is prepended to every key.
func NewRedisLocker(client redislock.RedisClient, prefix string, opts RedisOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for locker")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 25 * time.Millisecond
	}
	return &RedisLocker{client: redislock.New(client), prefix: prefix, opts: opts}, nil
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Handle, error) {
	var strategy redislock.RetryStrategy = redislock.NoRetry()
	if l.opts.MaxRetries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.opts.RetryEvery), l.opts.MaxRetries)
	}
	held, err := l.client.Obtain(ctx, l.prefix+key, l.opts.TTL, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return redisHandle{lock: held}, nil
}

type redisHandle struct {
	lock *redislock.Lock
}

// Release frees the key. A lock that already expired is not an error for the
// caller; the work it guarded has finished either way.
func (h redisHandle) Release(ctx context.Context) error {
	err := h.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker serializes callers within a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns an in-process locker. wait bounds how long Obtain
// blocks; zero waits until ctx is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Handle, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localHandle{owner: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localHandle struct {
	owner *LocalLocker
	key   string
	slot  *slot
	once  sync.Once
}

func (h *localHandle) Release(context.Context) error {
	h.once.Do(func() {
		<-h.slot.ch
		h.owner.unref(h.key, h.slot)
	})
	return nil
}
