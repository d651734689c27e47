// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package observe

import (
	"context"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/petenewcomb/nampipe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Instruments counts the runs and failures of one kind of task and records
// their durations in seconds.
type Instruments struct {
	count    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments creates the instruments named <name>.count, <name>.errors
// and <name>.duration on mp, or on the global meter provider if mp is nil.
func NewInstruments(mp metric.MeterProvider, name string) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	count, err := meter.Int64Counter(name+".count",
		metric.WithDescription("number of runs started"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter(name+".errors",
		metric.WithDescription("number of runs that failed"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(name+".duration",
		metric.WithDescription("run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instruments{count: count, errors: errs, duration: duration}, nil
}

// MeteredTask records every run of the task on ins.
func MeteredTask[T any](ins *Instruments, taskFunc nampipe.TaskFunc[T]) nampipe.TaskFunc[T] {
	return func(ctx context.Context) (T, error) {
		start := time.Now()
		ins.count.Add(ctx, 1)
		result, err := taskFunc(ctx)
		ins.duration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			ins.errors.Add(ctx, 1)
		}
		return result, err
	}
}

// InstallMetrics installs a global meter provider that writes collected
// metrics to w as JSON. The returned function exports a final collection
// and removes it.
func InstallMetrics(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithEncoder(json.NewEncoder(w)))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		otel.SetMeterProvider(prev)
		return mp.Shutdown(ctx)
	}, nil
}
