// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package pipeline implements the stages of an experiment run: creating the
// pool files, executing them, analysing the results and joining the
// analysed parts into one result file.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/petenewcomb/nampipe/analysis"
	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/batch"
	"github.com/petenewcomb/nampipe/experiment"
	"github.com/petenewcomb/nampipe/internal/cerr"
	"github.com/petenewcomb/nampipe/internal/observe"
	"github.com/petenewcomb/nampipe/network"
	"github.com/petenewcomb/nampipe/table"
	"go.uber.org/zap"
)

const ErrBatchFailed = cerr.Error("network execution failed")

// Runner carries the settings shared by all stages.
type Runner struct {
	// Backend is the backend identifier given by the user.
	Backend string
	// Options configures the backend in the process that runs a pool.
	Options backend.Options
	// Concurrency overrides the number of simultaneous workers when
	// positive.
	Concurrency int
	Seed        uint64
	// OutDir receives the files of Process runs.
	OutDir string
	// Launcher starts the workers of multi-file batches. Nil means a
	// batch.ProcessLauncher re-invoking the running program.
	Launcher    batch.Launcher
	Logger      *zap.Logger
	Instruments *observe.Instruments
	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Create partitions the experiment in expFile and writes its pools to dir as
// <name>_<i>.in.gz. It returns the pool files and the output files their
// execution will produce.
func (r *Runner) Create(expFile, dir string, analyse bool) (inputs, outputs []string, err error) {
	info, err := backend.Lookup(r.Backend)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckInputs([]string{expFile}); err != nil {
		return nil, nil, err
	}
	exp, err := experiment.Read(expFile)
	if err != nil {
		return nil, nil, err
	}
	pools, err := experiment.Partition(exp, info, r.Seed)
	if err != nil {
		return nil, nil, err
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	log := r.logger()
	for i, pool := range pools {
		in := filepath.Join(dir, fmt.Sprintf("%s_%d%s", exp.Name, i, network.PoolSuffix))
		log.Info("writing pool",
			zap.String("file", in),
			zap.Int("instances", len(pool.Instances)),
			zap.Int("neurons", pool.Neurons()))
		if err := network.WritePool(in, pool); err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, in)
		outputs = append(outputs, OutputName(in, analyse))
	}
	return inputs, outputs, nil
}

// Exec executes the pool files, analysing each result right away if analyse
// is set, and reports whether all of them succeeded.
func (r *Runner) Exec(ctx context.Context, files []string, analyse bool) (bool, error) {
	info, err := backend.Lookup(r.Backend)
	if err != nil {
		return false, err
	}
	if err := CheckInputs(files); err != nil {
		return false, err
	}
	launcher := r.Launcher
	if launcher == nil {
		launcher = &batch.ProcessLauncher{Backend: info.Name, Analyse: analyse}
	}
	s := &batch.Scheduler{
		Backend:     info,
		Concurrency: r.Concurrency,
		Launcher:    launcher,
		RunOne: func(ctx context.Context, file string) error {
			return r.ExecOne(ctx, file, analyse)
		},
		Logger:      r.Logger,
		Instruments: r.Instruments,
	}
	return s.Execute(ctx, files)
}

// ExecOne runs the pool in file on the backend in the calling process and
// writes its output next to it.
func (r *Runner) ExecOne(ctx context.Context, file string, analyse bool) error {
	log := r.logger()
	log.Info("reading pool", zap.String("file", file))
	pool, err := network.ReadPool(file)
	if err != nil {
		return err
	}
	id := r.Backend
	if id == "" {
		id = pool.Backend
	}
	b, err := backend.New(id, r.Options)
	if err != nil {
		return err
	}
	log.Info("running simulation", zap.String("backend", backend.Normalize(id)), zap.Int("pool", pool.Index))
	out, times, err := b.Run(ctx, pool)
	if err != nil {
		return fmt.Errorf("simulating %s: %w", file, err)
	}
	log.Info("simulation finished",
		zap.Duration("sim", times.Sim),
		zap.Duration("total", times.Total))

	res := &network.Result{Pool: pool, Times: times, Output: out}
	target := OutputName(file, analyse)
	if analyse {
		set, err := analysis.Analyze(res, nil, log)
		if err != nil {
			return err
		}
		log.Info("writing analysis", zap.String("file", target))
		return table.WriteFile(target, set)
	}
	log.Info("writing result", zap.String("file", target))
	return network.WriteResult(target, res)
}

// Analyse analyses the raw result files into one set of tables, finalizes
// it and writes it to target.
func (r *Runner) Analyse(target string, files []string) ([]table.Summary, error) {
	if err := CheckInputs(files); err != nil {
		return nil, err
	}
	log := r.logger()
	var set table.Set
	for _, f := range files {
		log.Info("analysing", zap.String("file", f))
		res, err := network.ReadResult(f)
		if err != nil {
			return nil, err
		}
		if set, err = analysis.Analyze(res, set, log); err != nil {
			return nil, fmt.Errorf("analysing %s: %w", f, err)
		}
	}
	return r.finish(target, set)
}

// Join merges the analysed part files into one set of tables, finalizes it
// and writes it to target.
func (r *Runner) Join(target string, files []string) ([]table.Summary, error) {
	if err := CheckInputs(files); err != nil {
		return nil, err
	}
	log := r.logger()
	var set table.Set
	for _, f := range files {
		log.Info("joining", zap.String("file", f))
		part, err := table.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if set, err = table.Merge(set, part); err != nil {
			return nil, fmt.Errorf("joining %s: %w", f, err)
		}
	}
	return r.finish(target, set)
}

func (r *Runner) finish(target string, set table.Set) ([]table.Summary, error) {
	if set == nil {
		set = table.Set{}
	}
	summaries := table.Finalize(set)
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	r.logger().Info("writing results", zap.String("file", target), zap.Int("experiments", len(set)))
	if err := table.WriteFile(target, set); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Process runs the complete pipeline for the experiment in expFile: it
// creates the pools in a dated directory below OutDir, executes them and
// writes the finalized tables to <OutDir>/<date>_<backend>_<experiment>.json,
// which it returns.
//
// Unless keep is set, pools are analysed as they are executed and all
// intermediate files are deleted afterwards. With keep, raw results are
// kept and analysed once all of them exist.
func (r *Runner) Process(ctx context.Context, expFile string, keep bool) (string, []table.Summary, error) {
	info, err := backend.Lookup(r.Backend)
	if err != nil {
		return "", nil, err
	}
	analyse := !keep
	date := r.now().Format("2006-01-02-15-04-05")
	folder := filepath.Join(r.OutDir, date+"_"+info.Name)

	inputs, outputs, err := r.Create(expFile, folder, analyse)
	if err != nil {
		return "", nil, err
	}
	ok, err := r.Exec(ctx, inputs, analyse)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrBatchFailed
	}
	if err := CheckOutputs(outputs); err != nil {
		return "", nil, err
	}

	target := filepath.Join(r.OutDir, date+"_"+info.Name+"_"+experiment.NameOf(expFile)+".json")
	var summaries []table.Summary
	if analyse {
		summaries, err = r.Join(target, outputs)
	} else {
		summaries, err = r.Analyse(target, outputs)
	}
	if err != nil {
		return "", nil, err
	}

	if !keep {
		r.cleanup(folder, inputs, outputs)
	}
	return target, summaries, nil
}

// cleanup removes intermediate files. Failures are only logged.
func (r *Runner) cleanup(folder string, files ...[]string) {
	log := r.logger()
	for _, fs := range files {
		for _, f := range fs {
			if err := os.Remove(f); err != nil {
				log.Warn("error while deleting", zap.String("file", f), zap.Error(err))
			}
		}
	}
	if err := os.Remove(folder); err != nil {
		log.Warn("error while deleting", zap.String("dir", folder), zap.Error(err))
	}
}
