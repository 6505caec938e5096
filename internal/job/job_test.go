package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff int64
}

func (f *fakePruner) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	pruner := &fakePruner{}
	j := NewEmbeddingCacheCleanupJob(pruner, 0)
	now := time.Unix(1_700_000_000, 0)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), pruner.cutoff)
	require.Equal(t, "embedding_cache_cleanup", j.Name())

	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 7).Run(context.Background()))
}

type fakeExpirer struct {
	maxAge time.Duration
	err    error
}

func (f *fakeExpirer) Expire(_ context.Context, maxAge time.Duration) (int64, error) {
	f.maxAge = maxAge
	return 1, f.err
}

func TestCacheExpiryJob(t *testing.T) {
	exp := &fakeExpirer{}
	require.NoError(t, NewCacheExpiryJob(exp, 72*time.Hour).Run(context.Background()))
	require.Equal(t, 72*time.Hour, exp.maxAge)

	exp = &fakeExpirer{}
	require.NoError(t, NewCacheExpiryJob(exp, 0).Run(context.Background()))
	require.Zero(t, exp.maxAge)

	exp = &fakeExpirer{err: errors.New("db down")}
	require.Error(t, NewCacheExpiryJob(exp, time.Hour).Run(context.Background()))
}

type fakeReEmbedder struct {
	remaining int
	calls     int
}

func (f *fakeReEmbedder) ReEmbedStale(_ context.Context, limit int) (int, error) {
	f.calls++
	n := limit
	if f.remaining < n {
		n = f.remaining
	}
	f.remaining -= n
	return n, nil
}

func TestReEmbedJobDrains(t *testing.T) {
	idx := &fakeReEmbedder{remaining: 25}
	require.NoError(t, NewReEmbedJob(idx, 10).Run(context.Background()))
	require.Zero(t, idx.remaining)
	require.Equal(t, 3, idx.calls)
}
