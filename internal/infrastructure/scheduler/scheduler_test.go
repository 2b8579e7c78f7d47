package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	runs    atomic.Int64
	block   chan struct{}
	failure error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return j.failure
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(nil)
	job := &countingJob{name: "poller"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))

	err := s.Register(job, NewIntervalSchedule(time.Second))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestRegisterRejectsNil(t *testing.T) {
	s := New(nil)

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)
}

func TestDueJobRunsOnce(t *testing.T) {
	s := New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	job := &countingJob{name: "poller"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	// Force the job due and tick.
	s.mu.Lock()
	s.jobs["poller"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.checkAndRunJobs()
	s.wg.Wait()

	assert.Equal(t, int64(1), job.runs.Load())

	// Not due again until the interval elapses.
	s.checkAndRunJobs()
	s.wg.Wait()
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestFuncJobAdaptsClosure(t *testing.T) {
	s := New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	var runs atomic.Int64
	job := FuncJob{
		JobName: "poller",
		Desc:    "closure-backed job",
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	assert.Equal(t, "poller", job.Name())
	assert.Equal(t, "closure-backed job", job.Description())

	s.mu.Lock()
	s.jobs["poller"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.checkAndRunJobs()
	s.wg.Wait()

	assert.Equal(t, int64(1), runs.Load())
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	s := New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	job := &countingJob{name: "poller", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	s.mu.Lock()
	s.jobs["poller"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.checkAndRunJobs()

	// Wait for the run to be in flight.
	assert.Eventually(t, func() bool {
		return job.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// A second due tick while the first run blocks must not start
	// another run.
	s.mu.Lock()
	s.jobs["poller"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.checkAndRunJobs()

	assert.Equal(t, int64(1), job.runs.Load())

	s.mu.RLock()
	assert.Equal(t, int64(1), s.jobs["poller"].skipCount)
	s.mu.RUnlock()

	close(job.block)
	s.wg.Wait()
}

func TestRunNowRefusesWhileInFlight(t *testing.T) {
	s := New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	job := &countingJob{name: "poller", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	done := make(chan error, 1)
	go func() {
		done <- s.RunNow(context.Background(), "poller")
	}()

	assert.Eventually(t, func() bool {
		return job.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	err := s.RunNow(context.Background(), "poller")
	assert.Error(t, err)

	close(job.block)
	assert.NoError(t, <-done)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(nil)

	err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestIntervalScheduleNext(t *testing.T) {
	sched := NewIntervalSchedule(10 * time.Second)
	now := time.Now()

	assert.Equal(t, now.Add(10*time.Second), sched.Next(now))
	assert.Equal(t, "@every 10s", sched.String())
}
