// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe

import (
	"context"
)

// A TaskFunc represents a task to be executed asynchronously within the context
// of a [TaskPool]. It returns a result of type T and an error value. The
// provided context should be respected for cancellation. Any other inputs to
// the task are expected to be captured by a function literal.
//
// Each TaskFunc is executed in a new goroutine and must therefore be
// thread-safe. This includes access to any captured variables.
//
// If a TaskFunc panics, the whole program will terminate as per [Handling
// panics] in The Go Programming Language Specification. Recover within the
// task itself if a panic should instead be reported as a failed result.
//
// WARNING: A TaskFunc must not call [Gather.Scatter] for its own job, as this
// would lead to deadlock when the concurrency limit is reached. Scatter
// detects this situation and panics, as long as the context passed to it is
// the one passed to the TaskFunc or is derived from it.
//
// [Handling panics]: https://go.dev/ref/spec#Handling_panics
type TaskFunc[T any] = func(context.Context) (T, error)

// A GatherFunc processes the result of a completed [TaskFunc]. Gather
// functions are always called from the goroutine calling the [Job]'s
// gathering methods, so they may freely access and mutate that goroutine's
// local state.
type GatherFunc[T any] = func(context.Context, T, error) error
