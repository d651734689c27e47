// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package batch executes a list of job files with bounded process-level
// parallelism.
package batch

import (
	"context"
	"errors"
	"runtime"

	"github.com/gammazero/deque"
	"github.com/petenewcomb/nampipe"
	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/internal/observe"
	"go.uber.org/zap"
)

const ErrNoJobs = cerr.Error("no job files given")

const errWorkerFailed = cerr.Error("worker failed")

// A Launcher runs one job file to completion in a worker, typically a
// separate process, and reports whether it succeeded.
type Launcher interface {
	Launch(ctx context.Context, file string) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, file string) error

func (f LauncherFunc) Launch(ctx context.Context, file string) error {
	return f(ctx, file)
}

// Scheduler executes job files on a backend.
type Scheduler struct {
	// Backend determines the concurrency limit for exclusive backends.
	Backend backend.Info
	// Concurrency overrides the number of simultaneous workers when
	// positive. It is ignored for exclusive backends.
	Concurrency int
	// Launcher starts a worker for one of several job files.
	Launcher Launcher
	// RunOne executes a lone job file in the calling process.
	RunOne func(ctx context.Context, file string) error
	// Logger receives progress and failure records. Nil discards them.
	Logger *zap.Logger
	// Instruments, if non-nil, records worker counts and durations.
	Instruments *observe.Instruments
}

// Limit returns the number of workers that may run at the same time.
func (s *Scheduler) Limit() int {
	switch {
	case s.Backend.Exclusive:
		return 1
	case s.Concurrency > 0:
		return s.Concurrency
	default:
		return runtime.NumCPU()
	}
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Execute runs every job file and reports whether all of them succeeded. A
// single file is run in the calling process. Otherwise each file is handed to
// the Launcher, at most Limit at a time, taking files from the end of the
// list first. Once a worker fails no further workers are started, but those
// already running are waited for.
//
// The returned error is non-nil only if the batch could not be carried out,
// for instance because ctx was canceled; failed jobs are reported through the
// boolean result.
func (s *Scheduler) Execute(ctx context.Context, files []string) (bool, error) {
	log := s.logger()
	switch len(files) {
	case 0:
		return false, ErrNoJobs
	case 1:
		run := observe.InstrumentedTask(log, s.Instruments, "nampipe.job",
			func(ctx context.Context) (string, error) {
				return files[0], s.RunOne(ctx, files[0])
			},
			zap.String("file", files[0]))
		if _, err := run(ctx); err != nil {
			log.Error("job failed", zap.String("file", files[0]), zap.Error(err))
			return false, nil
		}
		return true, nil
	}

	limit := s.Limit()
	log.Info("executing jobs",
		zap.Int("jobs", len(files)),
		zap.Int("concurrency", limit),
		zap.String("backend", s.Backend.Name))

	var work deque.Deque[string]
	for _, f := range files {
		work.PushBack(f)
	}

	job := nampipe.NewJob(ctx)
	defer job.CancelAndWait()
	pool := nampipe.NewTaskPool(job, limit)

	done := 0
	gather := observe.TracedGather("nampipe.gather", func(ctx context.Context, file string, err error) error {
		done++
		if err != nil {
			log.Error("worker failed", zap.String("file", file), zap.Error(err))
			return errWorkerFailed
		}
		log.Info("worker finished",
			zap.String("file", file),
			zap.Int("done", done),
			zap.Int("of", len(files)))
		return nil
	})

	// A full pool makes Scatter gather first, and a failure gathered there
	// keeps the next worker from starting.
	var failed bool
	launched := 0
	for work.Len() > 0 {
		err := gather.Scatter(ctx, pool, s.task(log, work.Back()))
		if errors.Is(err, errWorkerFailed) {
			failed = true
			break
		}
		if err != nil {
			return false, err
		}
		work.PopBack()
		launched++
	}

	// Workers already running are waited for.
	job.Close()
drain:
	for {
		select {
		case <-job.Done():
			break drain
		default:
		}
		_, err := job.GatherOne(ctx)
		if errors.Is(err, errWorkerFailed) {
			failed = true
		} else if err != nil {
			return false, err
		}
	}

	if failed {
		log.Error("batch failed",
			zap.Int("launched", launched),
			zap.Int("skipped", work.Len()),
			zap.Int("jobs", len(files)))
		return false, nil
	}
	log.Info("batch finished", zap.Int("jobs", len(files)), zap.Int("peak", pool.Peak()))
	return true, nil
}

func (s *Scheduler) task(log *zap.Logger, file string) nampipe.TaskFunc[observe.Propagated[string]] {
	return observe.InstrumentedTask(log, s.Instruments, "nampipe.worker",
		func(ctx context.Context) (string, error) {
			return file, s.Launcher.Launch(ctx, file)
		},
		zap.String("file", file))
}
