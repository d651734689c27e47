// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/config"
	"github.com/petenewcomb/nampipe/internal/observe"
	"github.com/petenewcomb/nampipe/pipeline"
	"github.com/petenewcomb/nampipe/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the state shared by all subcommands.
type app struct {
	stdout, stderr io.Writer

	envFile     string
	backendID   string
	concurrency int
	seed        uint64
	outDir      string
	logLevel    string
	driver      string
	trace       bool
	metrics     bool

	log         *zap.Logger
	runner      *pipeline.Runner
	stopTracing func(context.Context) error
	stopMetrics func(context.Context) error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nampipe",
		Short: "Run neural associative memory experiments",
		Long: `nampipe partitions experiment descriptions into pools of networks,
executes the pools on a simulation backend with bounded parallelism and
aggregates the measured metrics into one result table per experiment.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "environment file to load")
	pf.StringVarP(&a.backendID, "backend", "b", backend.Reference, "simulation backend")
	pf.IntVarP(&a.concurrency, "concurrency", "j", 0, "maximum number of simultaneous workers (default one per CPU)")
	pf.Uint64Var(&a.seed, "seed", 0, "partitioning seed (default "+config.EnvSeed+" or 1437243)")
	pf.StringVar(&a.outDir, "out", "", "output directory of process runs (default "+config.EnvOutDir+" or out)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (default "+config.EnvLogLevel+" or info)")
	pf.StringVar(&a.driver, "driver", "", "driver executable of the nmpm1 backend")
	pf.BoolVar(&a.trace, "trace", false, "write OpenTelemetry spans to standard error")
	pf.BoolVar(&a.metrics, "metrics", false, "write OpenTelemetry worker metrics to standard error")

	root.AddCommand(
		a.createCmd(),
		a.execCmd(),
		a.analyseCmd(),
		a.joinCmd(),
		a.processCmd(),
		a.backendsCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the
// logger and the pipeline runner.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency = a.concurrency
	}
	if flags.Changed("seed") {
		cfg.Seed = a.seed
	}
	if flags.Changed("out") {
		cfg.OutDir = a.outDir
	}
	// Worker processes inherit the environment, not the flags.
	if flags.Changed("log-level") {
		if err := cfg.LogLevel.Set(a.logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		if err := os.Setenv(config.EnvLogLevel, a.logLevel); err != nil {
			return err
		}
	}
	if flags.Changed("driver") {
		cfg.NMPM1Driver = a.driver
		if err := os.Setenv(config.EnvNMPM1Driver, a.driver); err != nil {
			return err
		}
	}
	if flags.Changed("trace") {
		cfg.Trace = a.trace
		if err := os.Setenv(config.EnvTrace, strconv.FormatBool(a.trace)); err != nil {
			return err
		}
	}
	if flags.Changed("metrics") {
		cfg.Metrics = a.metrics
		if err := os.Setenv(config.EnvMetrics, strconv.FormatBool(a.metrics)); err != nil {
			return err
		}
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if a.log, err = zc.Build(); err != nil {
		return err
	}

	if cfg.Trace {
		if a.stopTracing, err = observe.InstallTracing(a.stderr); err != nil {
			return err
		}
	}
	if cfg.Metrics {
		if a.stopMetrics, err = observe.InstallMetrics(a.stderr); err != nil {
			return err
		}
	}
	ins, err := observe.NewInstruments(nil, "nampipe.worker")
	if err != nil {
		return err
	}

	a.runner = &pipeline.Runner{
		Backend:     a.backendID,
		Options:     backend.Options{Driver: cfg.NMPM1Driver},
		Concurrency: cfg.Concurrency,
		Seed:        cfg.Seed,
		OutDir:      cfg.OutDir,
		Logger:      a.log,
		Instruments: ins,
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, stop := range []func(context.Context) error{a.stopTracing, a.stopMetrics} {
		if stop != nil {
			errs = append(errs, stop(ctx))
		}
	}
	if a.log != nil {
		// Sync reports an error for stderr on some platforms.
		_ = a.log.Sync()
	}
	return errors.Join(errs...)
}

func (a *app) printSummaries(sums []table.Summary) {
	heading := color.New(color.FgCyan, color.Bold)
	for _, s := range sums {
		heading.Fprintln(a.stdout, s.Heading())
		fmt.Fprint(a.stdout, s.Body())
	}
}

func (a *app) createCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create EXPERIMENT",
		Short: "Partition an experiment into pool files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, _, err := a.runner.Create(args[0], dir, false)
			if err != nil {
				return err
			}
			for _, f := range inputs {
				fmt.Fprintln(a.stdout, f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory receiving the pool files")
	return cmd
}

func (a *app) execCmd() *cobra.Command {
	var analyse bool
	cmd := &cobra.Command{
		Use:   "exec POOL...",
		Short: "Execute pool files",
		Long: `exec runs every pool file on the backend. A single file is run in this
process; several files are run in separate worker processes. Each pool
writes its raw result to <name>.out.gz, or its analysed tables to
<name>.out.tbl.gz if --analyse is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.runner.Exec(cmd.Context(), args, analyse)
			if err != nil {
				return err
			}
			if !ok {
				return pipeline.ErrBatchFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&analyse, "analyse", false, "analyse each result right after execution")
	return cmd
}

func targetFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "target", "t", "", "result file to write")
	_ = cmd.MarkFlagRequired("target")
}

func (a *app) analyseCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "analyse --target FILE RESULT...",
		Short: "Analyse raw result files into one result table file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sums, err := a.runner.Analyse(target, args)
			if err != nil {
				return err
			}
			a.printSummaries(sums)
			return nil
		},
	}
	targetFlag(cmd, &target)
	return cmd
}

func (a *app) joinCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "join --target FILE PART...",
		Short: "Join analysed part files into one result table file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sums, err := a.runner.Join(target, args)
			if err != nil {
				return err
			}
			a.printSummaries(sums)
			return nil
		},
	}
	targetFlag(cmd, &target)
	return cmd
}

// defaultExperiment is processed when no experiment file is named.
const defaultExperiment = "experiment.json"

func (a *app) processCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "process [EXPERIMENT]",
		Short: "Create, execute and analyse an experiment",
		Long: `process runs the complete pipeline for an experiment. Intermediate
files are written to a dated directory below the output directory and
removed afterwards unless --keep is given, in which case raw results are
kept and analysed at the end. EXPERIMENT defaults to ` + defaultExperiment + `.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp := defaultExperiment
			if len(args) > 0 {
				exp = args[0]
			}
			target, sums, err := a.runner.Process(cmd.Context(), exp, keep)
			if err != nil {
				return err
			}
			a.printSummaries(sums)
			fmt.Fprintln(a.stdout, "Results written to", filepath.ToSlash(target))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep raw results and intermediate files")
	return cmd
}

func (a *app) backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the known backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range backend.Names() {
				info, err := backend.Lookup(name)
				if err != nil {
					return err
				}
				line := name
				if info.Exclusive {
					line += " (exclusive)"
				}
				if info.MaxNeurons > 0 {
					line += fmt.Sprintf(" max %d neurons", info.MaxNeurons)
				}
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}
}
