// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/petenewcomb/nampipe/analysis"
	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/batch"
	"github.com/petenewcomb/nampipe/experiment"
	"github.com/petenewcomb/nampipe/network"
	"github.com/petenewcomb/nampipe/pipeline"
	"github.com/petenewcomb/nampipe/table"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sweepExperiment = `
input:
  sigma_t: 1.5
  p0: 0.02
pool_size: 2
experiments:
  - name: samples
    sweeps:
      - {key: data.n_samples, min: 40, max: 10, count: 4}
  - name: single
`

var stamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func writeExperiment(t *testing.T, dir string) string {
	path := filepath.Join(dir, "capacity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sweepExperiment), 0o644))
	return path
}

// inProcess returns a runner whose workers run in goroutines of the test
// process instead of separate processes.
func inProcess(outDir string, concurrency int) *pipeline.Runner {
	r := &pipeline.Runner{
		Backend:     "ref",
		Concurrency: concurrency,
		Seed:        experiment.DefaultSeed,
		OutDir:      outDir,
		Now:         func() time.Time { return stamp },
	}
	return r
}

func withLauncher(r *pipeline.Runner, analyse bool) *pipeline.Runner {
	r.Launcher = batch.LauncherFunc(func(ctx context.Context, file string) error {
		return r.ExecOne(ctx, file, analyse)
	})
	return r
}

func rows(tb *table.Table) [][]float64 {
	var out [][]float64
	for i := range tb.Len() {
		out = append(out, tb.Row(i))
	}
	return out
}

func TestCreate(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	exp := writeExperiment(t, dir)
	r := inProcess(dir, 1)

	inputs, outputs, err := r.Create(exp, filepath.Join(dir, "pools"), true)
	chk.NoError(err)
	chk.Equal([]string{
		filepath.Join(dir, "pools", "capacity_0.in.gz"),
		filepath.Join(dir, "pools", "capacity_1.in.gz"),
		filepath.Join(dir, "pools", "capacity_2.in.gz"),
	}, inputs)
	chk.Equal(filepath.Join(dir, "pools", "capacity_2.out.tbl.gz"), outputs[2])
	chk.NoError(pipeline.CheckInputs(inputs))

	pool, err := network.ReadPool(inputs[1])
	chk.NoError(err)
	chk.Equal(1, pool.Index)
	chk.Len(pool.Instances, 2)

	r.Backend = "quantum"
	_, _, err = r.Create(exp, filepath.Join(dir, "never"), false)
	chk.ErrorIs(err, backend.ErrUnknown)
	chk.NoDirExists(filepath.Join(dir, "never"))
}

func TestOutputName(t *testing.T) {
	chk := require.New(t)
	chk.Equal("d/x_1.out.gz", pipeline.OutputName("d/x_1.in.gz", false))
	chk.Equal("d/x_1.out.tbl.gz", pipeline.OutputName("d/x_1.in.gz", true))
	chk.Equal("pool.bin.out.gz", pipeline.OutputName("pool.bin", false))
}

func TestMissingFiles(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	present := filepath.Join(dir, "a.out.gz")
	chk.NoError(os.WriteFile(present, nil, 0o644))
	err := pipeline.CheckOutputs([]string{present, filepath.Join(dir, "b.out.gz"), filepath.Join(dir, "c.out.gz")})
	var missing *pipeline.MissingOutputsError
	chk.ErrorAs(err, &missing)
	chk.Equal("output", missing.Kind)
	chk.Len(missing.Files, 2)

	r := inProcess(dir, 1)
	_, err = r.Exec(context.Background(), []string{present, filepath.Join(dir, "nope.in.gz")}, false)
	chk.ErrorAs(err, &missing)
	chk.Equal("input", missing.Kind)

	_, err = r.Join(filepath.Join(dir, "t.json"), []string{filepath.Join(dir, "nope.out.tbl.gz")})
	chk.ErrorAs(err, &missing)
}

// Running a pool read back from its file gives the same metrics as running
// the pool that was written.
func TestPoolFileRoundTrip(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	exp, err := experiment.Read(writeExperiment(t, dir))
	chk.NoError(err)
	pools, err := experiment.Partition(exp, backend.Info{Name: "ref"}, experiment.DefaultSeed)
	chk.NoError(err)

	ctx := context.Background()
	out, times, err := backend.Simulator{}.Run(ctx, pools[0])
	chk.NoError(err)
	direct, err := analysis.Analyze(&network.Result{Pool: pools[0], Times: times, Output: out}, nil, nil)
	chk.NoError(err)

	file := filepath.Join(dir, "capacity_0.in.gz")
	chk.NoError(network.WritePool(file, pools[0]))
	r := inProcess(dir, 1)
	chk.NoError(r.ExecOne(ctx, file, true))
	viaFile, err := table.ReadFile(pipeline.OutputName(file, true))
	chk.NoError(err)

	chk.Equal(rows(direct["samples"]), rows(viaFile["samples"]))
}

func TestProcessSerialAndParallelAgree(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	src := t.TempDir()
	exp := writeExperiment(t, src)

	serialDir := t.TempDir()
	serial := withLauncher(inProcess(serialDir, 1), true)
	serialTarget, serialSums, err := serial.Process(ctx, exp, false)
	chk.NoError(err)
	chk.Equal(filepath.Join(serialDir, "2026-01-02-03-04-05_ref_capacity.json"), serialTarget)
	chk.NoDirExists(filepath.Join(serialDir, "2026-01-02-03-04-05_ref"))

	parallelDir := t.TempDir()
	parallel := withLauncher(inProcess(parallelDir, 2), true)
	parallelTarget, parallelSums, err := parallel.Process(ctx, exp, false)
	chk.NoError(err)

	a, err := table.ReadFile(serialTarget)
	chk.NoError(err)
	b, err := table.ReadFile(parallelTarget)
	chk.NoError(err)
	chk.Len(a, 2)
	for _, name := range []string{"samples", "single"} {
		chk.Equal(table.Finalized, a[name].Phase())
		chk.Equal(a[name].Keys(), b[name].Keys())
		chk.Equal(rows(a[name]), rows(b[name]))
	}
	samples, _ := a["samples"].Column("data.n_samples")
	chk.Equal([]float64{10, 20, 30, 40}, samples)

	chk.Len(serialSums, 1)
	chk.Equal("single", serialSums[0].Name)
	chk.Equal(serialSums[0].Values, parallelSums[0].Values)
}

func TestProcessKeep(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	src := t.TempDir()
	exp := writeExperiment(t, src)

	keepDir := t.TempDir()
	keep := withLauncher(inProcess(keepDir, 2), false)
	target, _, err := keep.Process(ctx, exp, true)
	chk.NoError(err)
	folder := filepath.Join(keepDir, "2026-01-02-03-04-05_ref")
	chk.FileExists(filepath.Join(folder, "capacity_0.in.gz"))
	chk.FileExists(filepath.Join(folder, "capacity_0.out.gz"))
	kept, err := table.ReadFile(target)
	chk.NoError(err)

	joinDir := t.TempDir()
	joined := withLauncher(inProcess(joinDir, 2), true)
	target, _, err = joined.Process(ctx, exp, false)
	chk.NoError(err)
	viaJoin, err := table.ReadFile(target)
	chk.NoError(err)

	chk.Equal(rows(kept["samples"]), rows(viaJoin["samples"]))
	chk.Equal(rows(kept["single"]), rows(viaJoin["single"]))
}

func TestProcessBatchFailure(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	exp := writeExperiment(t, dir)
	core, logs := observer.New(zapcore.ErrorLevel)
	r := inProcess(dir, 2)
	r.Logger = zap.New(core)
	r.Launcher = batch.LauncherFunc(func(ctx context.Context, file string) error {
		return errors.New("exit status 1")
	})
	_, _, err := r.Process(context.Background(), exp, false)
	chk.ErrorIs(err, pipeline.ErrBatchFailed)
	chk.Equal(1, logs.FilterMessage("batch failed").Len())
	// Intermediate files are kept for inspection.
	chk.FileExists(filepath.Join(dir, "2026-01-02-03-04-05_ref", "capacity_0.in.gz"))
}

func TestProcessMissingOutputs(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	exp := writeExperiment(t, dir)
	r := inProcess(dir, 2)
	r.Launcher = batch.LauncherFunc(func(ctx context.Context, file string) error {
		if filepath.Base(file) == "capacity_1.in.gz" {
			return nil
		}
		return r.ExecOne(ctx, file, true)
	})
	_, _, err := r.Process(context.Background(), exp, false)
	var missing *pipeline.MissingOutputsError
	chk.ErrorAs(err, &missing)
	chk.Equal([]string{filepath.Join(dir, "2026-01-02-03-04-05_ref", "capacity_1.out.tbl.gz")}, missing.Files)
}

func TestExecSingleFile(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	r := inProcess(dir, 0)
	inputs, outputs, err := r.Create(writeExperiment(t, dir), dir, false)
	chk.NoError(err)
	ok, err := r.Exec(context.Background(), inputs[2:], false)
	chk.NoError(err)
	chk.True(ok)
	res, err := network.ReadResult(outputs[2])
	chk.NoError(err)
	chk.Equal("single", res.Pool.Instances[0].Meta.Experiment)

	sums, err := r.Analyse(filepath.Join(dir, "sub", "single.json"), outputs[2:])
	chk.NoError(err)
	chk.Len(sums, 1)
	chk.Contains(sums[0].String(), "lat_avg")

	r.Backend = "nmpm1"
	ok, err = r.Exec(context.Background(), inputs[:1], false)
	chk.NoError(err)
	chk.False(ok, "nmpm1 without a driver cannot run")
}
