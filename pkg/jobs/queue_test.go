package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) observe(_, _, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func (o *outcomes) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.seen...)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("scoring", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{Type: "score.assign"})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestQueueCollapsesPendingKeys(t *testing.T) {
	release := make(chan struct{})
	var handled sync.WaitGroup
	handled.Add(1)
	obs := &outcomes{}
	q := NewQueue("scoring", func(ctx context.Context, job Job) error {
		<-release
		handled.Done()
		return nil
	}, QueueConfig{Observer: obs.observe})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{Type: "score.assign", Key: "score:jc-1", Payload: "jc-1"}))
	require.NoError(t, q.Enqueue(Job{Type: "score.assign", Key: "score:jc-1", Payload: "jc-1"}))
	assert.Equal(t, 1, q.Pending())

	close(release)
	handled.Wait()
	require.NoError(t, q.Shutdown(context.Background()))

	assert.ElementsMatch(t, []string{OutcomeSkipped, OutcomeDone}, obs.list())
	assert.Zero(t, q.Pending())
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	dead := make(chan struct{})
	obs := &outcomes{}
	q := NewQueue("scoring", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("db down")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Observer: func(queue, jobType, outcome string) {
			obs.observe(queue, jobType, outcome)
			if outcome == OutcomeDead {
				close(dead)
			}
		},
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{Type: "score.assign", Key: "score:jc-2"}))

	select {
	case <-dead:
	case <-time.After(2 * time.Second):
		t.Fatal("job never reached the dead state")
	}
	require.NoError(t, q.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{OutcomeRetried, OutcomeRetried, OutcomeDead}, obs.list())
}

func TestQueueShutdownDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var done []string
	q := NewQueue("scoring", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, job.Payload.(string))
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())

	for _, id := range []string{"jc-1", "jc-2", "jc-3"} {
		require.NoError(t, q.Enqueue(Job{Type: "score.assign", Payload: id}))
	}
	require.NoError(t, q.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"jc-1", "jc-2", "jc-3"}, done)
	assert.ErrorIs(t, q.Enqueue(Job{Type: "score.assign"}), ErrNotRunning)
}
