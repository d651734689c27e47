// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package observe

import (
	"context"
	"time"

	"github.com/petenewcomb/nampipe"
	"go.uber.org/zap"
)

// LoggedTask logs the start and completion of every run of the task at debug
// level. Failures are left to the gather function to report. A nil logger
// discards the records.
func LoggedTask[T any](
	log *zap.Logger,
	operationName string,
	taskFunc nampipe.TaskFunc[T],
	fields ...zap.Field,
) nampipe.TaskFunc[T] {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("operation", operationName)).With(fields...)
	return func(ctx context.Context) (T, error) {
		log.Debug("starting task")
		start := time.Now()
		result, err := taskFunc(ctx)
		duration := time.Since(start)
		if err != nil {
			log.Debug("task failed", zap.Duration("duration", duration), zap.Error(err))
		} else {
			log.Debug("task completed", zap.Duration("duration", duration))
		}
		return result, err
	}
}

// InstrumentedTask applies logging, metrics and tracing to the task. The
// span encloses the other two so that their records fall within it.
func InstrumentedTask[T any](
	log *zap.Logger,
	ins *Instruments,
	operationName string,
	taskFunc nampipe.TaskFunc[T],
	fields ...zap.Field,
) nampipe.TaskFunc[Propagated[T]] {
	task := LoggedTask(log, operationName, taskFunc, fields...)
	if ins != nil {
		task = MeteredTask(ins, task)
	}
	return TracedTask(operationName, task)
}
