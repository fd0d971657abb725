package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
)

const defaultLockWait = 5 * time.Second

// recordLock wraps a Locker with a bounded wait and lock metrics.
type recordLock struct {
	locker  lock.Locker
	wait    time.Duration
	metrics *MetricsService
}

func newRecordLock(locker lock.Locker, wait time.Duration, metrics *MetricsService) recordLock {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return recordLock{locker: locker, wait: wait, metrics: metrics}
}

// acquire holds key until the returned release is called. A lock that cannot be
// taken within the wait window yields LOCK_TIMEOUT.
func (l recordLock) acquire(ctx context.Context, scope, key string) (lock.Release, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	start := time.Now()
	release, err := l.locker.Acquire(waitCtx, key)
	l.metrics.ObserveLockWait(scope, time.Since(start))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.Wrap(err, appErrors.ErrLockTimeout.Code, appErrors.ErrLockTimeout.Status, appErrors.ErrLockTimeout.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock record")
	}
	return release, nil
}

func asAppError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
