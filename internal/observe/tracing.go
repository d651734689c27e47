// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package observe

import (
	"context"
	"io"

	"github.com/petenewcomb/nampipe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "github.com/petenewcomb/nampipe"

// TracedTask runs the task within a span of the given name. Failures are
// recorded on the span.
func TracedTask[T any](
	operationName string,
	taskFunc nampipe.TaskFunc[T],
	attrs ...attribute.KeyValue,
) nampipe.TaskFunc[Propagated[T]] {
	propagated := PropagateTask(taskFunc)
	return func(ctx context.Context) (Propagated[T], error) {
		ctx, span := otel.Tracer(instrumentationName).Start(ctx, operationName)
		defer span.End()
		span.SetAttributes(attrs...)

		result, err := propagated(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}
}

// TracedGather creates a Gather whose gather function runs within a span of
// the given name, parented to the span of the task being gathered.
func TracedGather[T any](
	operationName string,
	gatherFunc nampipe.GatherFunc[T],
) *nampipe.Gather[Propagated[T]] {
	return PropagateGather(func(ctx context.Context, value T, err error) error {
		ctx, span := otel.Tracer(instrumentationName).Start(ctx, operationName)
		defer span.End()
		gatherErr := gatherFunc(ctx, value, err)
		if gatherErr != nil {
			span.RecordError(gatherErr)
			span.SetStatus(codes.Error, gatherErr.Error())
		}
		return gatherErr
	})
}

// InstallTracing installs a global tracer provider that writes finished
// spans to w. The returned function flushes and removes it.
func InstallTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		otel.SetTracerProvider(prev)
		return tp.Shutdown(ctx)
	}, nil
}
