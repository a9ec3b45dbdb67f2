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

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "noop"}))

	select {
	case job := <-done:
		assert.Equal(t, "job-1", job.ID)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestStopRunsBufferedJobsUnderCancelledContext(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	cancelledAt := make(map[string]bool)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if job.ID == "job-1" {
			close(started)
			<-ctx.Done()
		}
		mu.Lock()
		cancelledAt[job.ID] = ctx.Err() != nil
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "noop"}))
	<-started
	// The single worker is occupied, so this one sits in the buffer.
	require.NoError(t, q.Enqueue(Job{ID: "job-2", Type: "noop"}))

	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, cancelledAt, "job-2", "buffered job never reached the handler")
	assert.True(t, cancelledAt["job-2"], "buffered job should run under the cancelled context")
}

func TestFailedJobIsRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "flaky"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})

	require.Error(t, q.Enqueue(Job{ID: "job-1"}))

	q.Start(context.Background())
	q.Stop()
	require.Error(t, q.Enqueue(Job{ID: "job-2"}))
}
