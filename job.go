// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe

import (
	"context"
	"maps"
	"sync"

	"github.com/petenewcomb/nampipe/internal/state"
)

// Job represents a single-threaded scatter-gather execution environment. It
// tracks tasks launched through its [TaskPool]s and provides the
// [Job.GatherOne] and [Job.GatherAll] methods for gathering their results.
// [Job.Cancel] allows the caller to terminate the environment early.
//
// All scattering and gathering for a Job must happen on one goroutine. Task
// functions still run on their own goroutines.
type Job struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	state      state.JobState
	wg         sync.WaitGroup
	gatherChan chan boundGatherFunc
}

type boundGatherFunc = func(ctx context.Context) error

// NewJob creates a scatter-gather execution environment. The context passed
// to NewJob is used as the root of the context passed to all task functions.
//
// Each call to NewJob should typically be followed by a deferred call to
// [Job.CancelAndWait] to ensure that an early exit from the calling function
// does not leave any outstanding tasks running.
func NewJob(ctx context.Context) *Job {
	j := &Job{}
	ctx, cancelFunc := context.WithCancel(ctx)
	j.ctx = j.makeTaskContext(ctx)
	j.cancelFunc = cancelFunc
	j.state.Init()
	j.gatherChan = make(chan boundGatherFunc)
	return j
}

type taskContextMarkerType struct{}

var taskContextMarkerKey any = taskContextMarkerType{}

func (j *Job) makeTaskContext(ctx context.Context) context.Context {
	// Accumulate the jobs to which the context belongs but avoid creating a
	// collection unless it's needed.
	var newValue any
	switch oldValue := ctx.Value(taskContextMarkerKey).(type) {
	case nil:
		newValue = j
	case *Job:
		newValue = map[*Job]struct{}{
			oldValue: {},
			j:        {},
		}
	case map[*Job]struct{}:
		m := make(map[*Job]struct{}, len(oldValue)+1)
		maps.Copy(m, oldValue)
		m[j] = struct{}{}
		newValue = m
	default:
		panic("unexpected task context marker value type")
	}
	return context.WithValue(ctx, taskContextMarkerKey, newValue)
}

func includesJob(ctx context.Context, j *Job) bool {
	switch v := ctx.Value(taskContextMarkerKey).(type) {
	case nil:
		return false
	case *Job:
		return v == j
	case map[*Job]struct{}:
		_, ok := v[j]
		return ok
	default:
		panic("unexpected task context marker value type")
	}
}

// Cancel cancels the context passed to every task and forfeits any ungathered
// results. It returns immediately; see [Job.CancelAndWait].
func (j *Job) Cancel() {
	j.cancelFunc()
}

// CancelAndWait cancels the job and waits for all task goroutines to exit.
func (j *Job) CancelAndWait() {
	j.Cancel()
	j.wg.Wait()
}

// Close marks the job as accepting no more tasks. Tasks already launched keep
// running and their results may still be gathered. [Job.Done] is closed once
// the last of them has been gathered.
func (j *Job) Close() {
	j.state.Close()
}

// Done returns a channel that is closed once the job has been closed and all
// of its tasks have been gathered.
func (j *Job) Done() <-chan struct{} {
	return j.state.Done()
}

// GatherOne processes at most a single result from a task previously
// launched into one of the job's pools. It blocks until a completed task is
// available or the context has been canceled. Gathering a result frees the
// pool slot its task occupied.
//
// Returns a boolean flag indicating whether a result was processed and an
// error if one occurred:
//
//   - true, nil: a task completed and was successfully gathered
//   - true, non-nil: a task completed but the gather function returned a
//     non-nil error
//   - false, nil: there were no tasks in flight
//   - false, non-nil: the argument or job-internal context was canceled
func (j *Job) GatherOne(ctx context.Context) (bool, error) {
	j.panicIfTaskContext(ctx)
	if !j.state.HasTasks() {
		return false, nil
	}
	select {
	case gather := <-j.gatherChan:
		return true, j.executeGather(ctx, gather)
	case <-ctx.Done():
		return false, ctx.Err()
	case <-j.ctx.Done():
		return false, j.ctx.Err()
	}
}

// GatherAll processes all results from previously scattered tasks, continuing
// until there are no more in-flight tasks or an error occurs.
func (j *Job) GatherAll(ctx context.Context) error {
	for {
		ok, err := j.GatherOne(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// CloseAndGatherAll closes the job and gathers every remaining result.
func (j *Job) CloseAndGatherAll(ctx context.Context) error {
	j.Close()
	return j.GatherAll(ctx)
}

func (j *Job) executeGather(ctx context.Context, gather boundGatherFunc) error {
	// Retire the task only after its gather function has run so that the
	// in-flight count never drops to zero before the gather function has had
	// a chance to scatter new tasks.
	defer j.state.DecrementTasks()
	return gather(ctx)
}

func (j *Job) panicIfTaskContext(ctx context.Context) {
	if includesJob(ctx, j) {
		panic("Gather called from within TaskFunc of the same or a parent Job")
	}
}
