package story

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTaskAndWaits(t *testing.T) {
	tasks := NewScheduler()

	var ran atomic.Bool
	tasks.Go("test-task", func(ctx context.Context) {
		ran.Store(true)
	})

	tasks.Wait()
	assert.True(t, ran.Load())
}

func TestSchedulerTaskContextIsDetached(t *testing.T) {
	tasks := NewScheduler()

	ctxErr := make(chan error, 1)
	tasks.Go("test-task", func(ctx context.Context) {
		// The task context must not be the caller's; it only carries the
		// task deadline.
		ctxErr <- ctx.Err()
	})

	tasks.Wait()
	require.NoError(t, <-ctxErr)
}

func TestSchedulerStopRejectsNewTasks(t *testing.T) {
	tasks := NewScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tasks.Stop(ctx))

	var ran atomic.Bool
	tasks.Go("late-task", func(ctx context.Context) {
		ran.Store(true)
	})

	tasks.Wait()
	assert.False(t, ran.Load())
}

func TestSchedulerStopTimesOutOnStuckTask(t *testing.T) {
	tasks := NewScheduler()

	release := make(chan struct{})
	started := make(chan struct{})
	tasks.Go("stuck-task", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tasks.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	tasks.Wait()
}

func TestSchedulerRecoversPanickingTask(t *testing.T) {
	tasks := NewScheduler()

	tasks.Go("panic-task", func(ctx context.Context) {
		panic("boom")
	})

	// Wait must return normally; the panic is contained in the task goroutine.
	assert.NotPanics(t, tasks.Wait)
}
