// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package observe wraps nampipe task and gather functions with structured
// logging, OpenTelemetry tracing and OpenTelemetry metrics.
package observe

import (
	"context"

	"github.com/petenewcomb/nampipe"
	"go.opentelemetry.io/otel/trace"
)

// Propagated carries a task result together with the span context of the
// task that produced it, so that gather functions run on the gathering
// goroutine can be parented to the task's span.
type Propagated[T any] struct {
	Value        T
	TraceContext trace.SpanContext
}

// PropagateTask wraps a task so that its result carries the span context of
// the context it ran in.
func PropagateTask[T any](taskFunc nampipe.TaskFunc[T]) nampipe.TaskFunc[Propagated[T]] {
	return func(ctx context.Context) (Propagated[T], error) {
		value, err := taskFunc(ctx)
		return Propagated[T]{
			Value:        value,
			TraceContext: trace.SpanFromContext(ctx).SpanContext(),
		}, err
	}
}

// PropagateGather creates a Gather whose gather function sees the span
// context carried by each result.
func PropagateGather[T any](gatherFunc nampipe.GatherFunc[T]) *nampipe.Gather[Propagated[T]] {
	return nampipe.NewGather(func(ctx context.Context, p Propagated[T], err error) error {
		if p.TraceContext.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, p.TraceContext)
		}
		return gatherFunc(ctx, p.Value, err)
	})
}
