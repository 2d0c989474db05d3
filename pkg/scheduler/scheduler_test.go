package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swift2s3/pkg/models"
)

type recordingRunner struct {
	mu       sync.Mutex
	calls    int
	requests []models.TransferRequest
	err      error
	done     chan struct{}
}

func (r *recordingRunner) Execute(_ context.Context, req models.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.requests = append(r.requests, req)
	if r.done != nil && r.calls == 1 {
		close(r.done)
	}
	return r.err
}

func (r *recordingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testRequest() models.TransferRequest {
	return models.TransferRequest{
		Container:        "container",
		Bucket:           "bucket",
		Region:           "eu-west-1",
		MaxWorkers:       2,
		BandwidthLimitMb: 5,
	}
}

func TestSetRejectsInvalidCronExpression(t *testing.T) {
	sched := NewScheduler(&recordingRunner{}, zerolog.Nop())

	err := sched.Set(context.Background(), "not a cron expr", testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")

	_, ok := sched.Snapshot()
	assert.False(t, ok)
}

func TestSetReplacesPreviousSchedule(t *testing.T) {
	sched := NewScheduler(&recordingRunner{}, zerolog.Nop())

	require.NoError(t, sched.Set(context.Background(), "0 2 * * *", testRequest()))
	require.NoError(t, sched.Set(context.Background(), "30 4 * * *", testRequest()))

	snapshot, ok := sched.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "30 4 * * *", snapshot.CronExpr)
	assert.Equal(t, 0, snapshot.RunCount)
}

func TestSchedulerExecutesRecurringRun(t *testing.T) {
	runner := &recordingRunner{done: make(chan struct{})}
	sched := NewScheduler(runner, zerolog.Nop())

	req := testRequest()
	require.NoError(t, sched.Set(context.Background(), "@every 1s", req))
	require.NoError(t, sched.Start())
	defer sched.Stop()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never fired")
	}

	assert.GreaterOrEqual(t, runner.callCount(), 1)

	// Bookkeeping happens after Execute returns, so poll for it.
	assert.Eventually(t, func() bool {
		snapshot, ok := sched.Snapshot()
		return ok && snapshot.RunCount >= 1 && !snapshot.LastRun.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	snapshot, ok := sched.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 0, snapshot.FailCount)
	assert.Equal(t, req.Container, snapshot.Request.Container)
}

func TestSchedulerCountsFailedRuns(t *testing.T) {
	runner := &recordingRunner{err: errors.New("transfer failed"), done: make(chan struct{})}
	sched := NewScheduler(runner, zerolog.Nop())

	require.NoError(t, sched.Set(context.Background(), "@every 1s", testRequest()))
	require.NoError(t, sched.Start())
	defer sched.Stop()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never fired")
	}

	// Let the bookkeeping after Execute finish.
	assert.Eventually(t, func() bool {
		snapshot, ok := sched.Snapshot()
		return ok && snapshot.FailCount >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	sched := NewScheduler(&recordingRunner{}, zerolog.Nop())

	require.NoError(t, sched.Start())
	defer sched.Stop()

	require.Error(t, sched.Start())
}

func TestStopWithoutStartFails(t *testing.T) {
	sched := NewScheduler(&recordingRunner{}, zerolog.Nop())
	require.Error(t, sched.Stop())
}

func TestNextRunIsRefreshedAfterExecution(t *testing.T) {
	runner := &recordingRunner{done: make(chan struct{})}
	sched := NewScheduler(runner, zerolog.Nop())

	require.NoError(t, sched.Set(context.Background(), "@every 1s", testRequest()))
	require.NoError(t, sched.Start())
	defer sched.Stop()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never fired")
	}

	assert.Eventually(t, func() bool {
		snapshot, ok := sched.Snapshot()
		return ok && !snapshot.NextRun.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}
