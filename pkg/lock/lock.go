// Package lock provides keyed mutual exclusion scoped to a single record,
// either in-process or shared across instances through Redis.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be obtained before the context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Release frees a held lock. Calling it more than once is a no-op.
type Release func()

// Locker serialises work on a single key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// JobCardKey scopes a lock to one job card.
func JobCardKey(id string) string {
	return "jobcard:" + id
}

// AttendanceKey scopes a lock to one employee's attendance.
func AttendanceKey(employeeID string) string {
	return "attendance:" + employeeID
}
