package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
)

func TestRecordLockTimesOut(t *testing.T) {
	l := newRecordLock(lock.NewMemoryLocker(), 20*time.Millisecond, NewMetricsService())

	release, err := l.acquire(context.Background(), "jobcard", lock.JobCardKey("jc-1"))
	require.NoError(t, err)
	defer release()

	_, err = l.acquire(context.Background(), "jobcard", lock.JobCardKey("jc-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLockTimeout.Code, appErrors.FromError(err).Code)

	other, err := l.acquire(context.Background(), "jobcard", lock.JobCardKey("jc-2"))
	require.NoError(t, err)
	other()
}
