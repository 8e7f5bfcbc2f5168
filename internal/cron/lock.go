package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
)

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockerLock adapts a keyed lock.Locker to the single-key cron Lock. Acquire
// never waits: a held key means another worker owns this cycle.
type LockerLock struct {
	locker lock.Locker
	key    string

	mu     sync.Mutex
	handle lock.Handle
}

// NewLockerLock binds key on locker.
func NewLockerLock(locker lock.Locker, key string) (*LockerLock, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	return &LockerLock{locker: locker, key: key}, nil
}

// Acquire reports whether this worker now owns the key.
func (l *LockerLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		return false, nil
	}
	handle, err := l.locker.Obtain(ctx, l.key)
	if errors.Is(err, lock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain cron lock: %w", err)
	}
	l.handle = handle
	return true, nil
}

// Release frees the key if this worker holds it.
func (l *LockerLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	err := l.handle.Release(ctx)
	l.handle = nil
	if err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
