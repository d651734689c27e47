// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/nampipe"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTaskPoolNilJobPanic(t *testing.T) {
	chk := require.New(t)
	chk.PanicsWithValue("job must be non-nil", func() {
		_ = nampipe.NewTaskPool(nil, 1)
	})
}

func TestTaskPoolZeroLimitPanic(t *testing.T) {
	chk := require.New(t)
	job := nampipe.NewJob(context.Background())
	defer job.CancelAndWait()
	chk.PanicsWithValue("limit must be non-zero", func() {
		_ = nampipe.NewTaskPool(job, 0)
	})
}

func TestTaskPoolClosedJobPanic(t *testing.T) {
	chk := require.New(t)
	job := nampipe.NewJob(context.Background())
	defer job.CancelAndWait()
	job.Close()
	chk.PanicsWithValue("job is closed and no longer accepts tasks", func() {
		_ = nampipe.NewTaskPool(job, 1)
	})
}

func TestScatterAtLimitGathersFirst(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	job := nampipe.NewJob(ctx)
	defer job.CancelAndWait()
	pool := nampipe.NewTaskPool(job, 1)

	var gathered []int
	gather := nampipe.NewGather(
		func(ctx context.Context, result int, err error) error {
			chk.NoError(err)
			gathered = append(gathered, result)
			return nil
		},
	)
	chk.NoError(gather.Scatter(ctx, pool, func(context.Context) (int, error) {
		return 1, nil
	}))
	chk.Empty(gathered)

	// The slot is held until the first result is gathered, which the second
	// Scatter does before launching.
	chk.NoError(gather.Scatter(ctx, pool, func(context.Context) (int, error) {
		return 2, nil
	}))
	chk.Equal([]int{1}, gathered)

	chk.NoError(job.CloseAndGatherAll(ctx))
	chk.Equal([]int{1, 2}, gathered)
	chk.Equal(1, pool.Peak())
}

func TestScatterStopsOnGatherError(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	job := nampipe.NewJob(ctx)
	defer job.CancelAndWait()
	pool := nampipe.NewTaskPool(job, 1)

	boom := errors.New("boom")
	gather := nampipe.NewGather(
		func(ctx context.Context, result int, err error) error {
			return err
		},
	)
	chk.NoError(gather.Scatter(ctx, pool, func(context.Context) (int, error) {
		return 0, boom
	}))

	var ran atomic.Bool
	err := gather.Scatter(ctx, pool, func(context.Context) (int, error) {
		ran.Store(true)
		return 0, nil
	})
	chk.ErrorIs(err, boom)

	chk.NoError(job.CloseAndGatherAll(ctx))
	chk.False(ran.Load())
	select {
	case <-job.Done():
	default:
		chk.Fail("job should be done")
	}
}

func TestJobDoneAfterCloseAndGatherAll(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	job := nampipe.NewJob(ctx)
	defer job.CancelAndWait()
	pool := nampipe.NewTaskPool(job, 3)

	gather := nampipe.NewGather(
		func(ctx context.Context, result int, err error) error {
			return nil
		},
	)
	for range 4 {
		chk.NoError(gather.Scatter(ctx, pool, func(context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			return 0, nil
		}))
	}
	chk.NoError(job.CloseAndGatherAll(ctx))
	select {
	case <-job.Done():
	default:
		chk.Fail("job should be done")
	}
}

func TestScatterCanceledContext(t *testing.T) {
	chk := require.New(t)
	job := nampipe.NewJob(context.Background())
	defer job.CancelAndWait()
	pool := nampipe.NewTaskPool(job, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gather := nampipe.NewGather(
		func(ctx context.Context, result int, err error) error {
			chk.Fail("should not get here")
			return nil
		},
	)
	err := gather.Scatter(ctx, pool, func(context.Context) (int, error) {
		chk.Fail("should not get here")
		return 0, nil
	})
	chk.ErrorIs(err, context.Canceled)
	chk.NoError(job.CloseAndGatherAll(context.Background()))
}

// TestTaskPoolLimitProperty checks that, for any limit and task count, the
// number of concurrently running tasks never exceeds the limit and every task
// is gathered exactly once.
func TestTaskPoolLimitProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 6).Draw(t, "limit")
		n := rapid.IntRange(0, 24).Draw(t, "n")
		chk := require.New(t)
		ctx := context.Background()
		job := nampipe.NewJob(ctx)
		defer job.CancelAndWait()
		pool := nampipe.NewTaskPool(job, limit)

		var running, peak atomic.Int64
		gathered := make(map[int]int)
		gather := nampipe.NewGather(
			func(ctx context.Context, result int, err error) error {
				chk.NoError(err)
				gathered[result]++
				return nil
			},
		)
		for i := range n {
			chk.NoError(gather.Scatter(ctx, pool, func(context.Context) (int, error) {
				now := running.Add(1)
				for {
					p := peak.Load()
					if now <= p || peak.CompareAndSwap(p, now) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				running.Add(-1)
				return i, nil
			}))
		}
		chk.NoError(job.CloseAndGatherAll(ctx))
		chk.LessOrEqual(peak.Load(), int64(limit))
		chk.LessOrEqual(pool.Peak(), limit)
		chk.Len(gathered, n)
		for i := range n {
			chk.Equal(1, gathered[i])
		}
	})
}
