// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"
)

// lifecycleStage represents the possible stages in a job's lifecycle
type lifecycleStage int32

const (
	// stageOpen indicates that the job is accepting new tasks
	stageOpen lifecycleStage = iota
	// stageClosed indicates that the job is closed for new tasks but
	// tasks already launched continue to run and wait to be gathered
	stageClosed
	// stageDone indicates that the job is closed and every launched task has
	// been gathered
	stageDone
)

// JobState encapsulates the lifecycle of a job. A task counts as in flight
// from the moment it is registered until its result has been gathered.
type JobState struct {
	currentStage atomic.Int32 // Contains a lifecycleStage value
	inFlight     InFlightCounter
	done         chan struct{}
}

// Init initializes an uninitialized JobState to the Open stage, and must be
// called exactly once before any other methods. An Init method is provided
// instead of a New function because JobState is expected to be an embedded
// field of Job.
func (js *JobState) Init() {
	js.currentStage.Store(int32(stageOpen))
	js.done = make(chan struct{})
}

// IncrementTasks registers a task that is about to be launched.
func (js *JobState) IncrementTasks() {
	js.inFlight.Increment()
}

// DecrementTasks retires a task, either because its result was gathered or
// because its launch was abandoned.
func (js *JobState) DecrementTasks() {
	if js.inFlight.Decrement() {
		js.noMoreWork()
	}
}

// HasTasks reports whether any registered task has not yet been retired.
func (js *JobState) HasTasks() bool {
	return !js.inFlight.IsZero()
}

// Close transitions from Open to Closed, and on to Done if nothing is left.
func (js *JobState) Close() {
	if js.currentStage.CompareAndSwap(int32(stageOpen), int32(stageClosed)) {
		if js.inFlight.IsZero() {
			js.noMoreWork()
		}
	}
}

// Done returns the channel that will be closed when the job transitions to
// Done.
func (js *JobState) Done() <-chan struct{} {
	return js.done
}

// PanicIfClosed panics if the job no longer accepts new tasks.
func (js *JobState) PanicIfClosed() {
	if lifecycleStage(js.currentStage.Load()) != stageOpen {
		panic("job is closed and no longer accepts tasks")
	}
}

func (js *JobState) noMoreWork() {
	if js.currentStage.CompareAndSwap(int32(stageClosed), int32(stageDone)) {
		close(js.done)
	}
}
