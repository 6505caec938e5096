package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string {
	return j.name
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestAddJobRejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewCronScheduler(0)
	job := &countingJob{name: "cache_expiry"}
	require.Error(t, s.AddJob(job, "not a spec"))
	require.NoError(t, s.AddJob(job, "@every 1h"))
	require.Error(t, s.AddJob(job, "0 * * * *"))
}

func TestRunNow(t *testing.T) {
	s := NewCronScheduler(0)
	job := &countingJob{name: "reembed", err: errors.New("boom")}
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	require.Error(t, s.RunNow(context.Background(), "reembed"))
	require.Equal(t, int32(1), job.runs.Load())
	require.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestRunSkipsOverlap(t *testing.T) {
	s := NewCronScheduler(0)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job, "@every 1h"))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.RunNow(context.Background(), "slow"))
	require.Equal(t, int32(1), job.runs.Load())
	close(job.block)
	require.NoError(t, <-done)
}

func TestRunTimeout(t *testing.T) {
	s := NewCronScheduler(20 * time.Millisecond)
	job := &countingJob{name: "stuck", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job, "@every 1h"))
	err := s.RunNow(context.Background(), "stuck")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
