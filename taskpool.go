// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe

import (
	"context"

	"github.com/petenewcomb/nampipe/internal/state"
)

// A TaskPool defines a set of task execution slots within a [Job]. A task
// holds its slot from launch until its result has been gathered, so at most
// Limit tasks launched into the pool are running or awaiting gathering at
// the same time.
type TaskPool struct {
	job      *Job
	limit    int
	inFlight state.InFlightCounter
}

// NewTaskPool creates a new [TaskPool] bound to the specified job. A negative
// limit means no limit. Zero is not a valid limit, since nothing could ever
// be launched.
//
// Panics if the job is nil or closed.
func NewTaskPool(job *Job, limit int) *TaskPool {
	if job == nil {
		panic("job must be non-nil")
	}
	if limit == 0 {
		panic("limit must be non-zero")
	}
	job.state.PanicIfClosed()
	return &TaskPool{
		job:   job,
		limit: limit,
	}
}

// Limit returns the pool's concurrency limit.
func (p *TaskPool) Limit() int {
	return p.limit
}

// Peak returns the highest number of slots that were ever held at once.
func (p *TaskPool) Peak() int {
	return p.inFlight.Peak()
}

func (p *TaskPool) launch(ctx context.Context, task boundTaskFunc) error {
	j := p.job

	// Don't launch if the provided context has been canceled.
	if err := ctx.Err(); err != nil {
		return err
	}

	// Don't launch if the job context has been canceled.
	if err := j.ctx.Err(); err != nil {
		return err
	}

	// Slots are freed only by gathering, so gather until one is.
	for !p.inFlight.IncrementIfUnder(p.limit) {
		ok, err := j.GatherOne(ctx)
		if err != nil {
			return err
		}
		if !ok {
			panic("pool at limit with no task left to gather")
		}
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		task(j.ctx)
	}()
	return nil
}

type boundTaskFunc func(ctx context.Context)

func (p *TaskPool) release() {
	p.inFlight.Decrement()
}
