// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package batch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/nampipe/backend"
	"github.com/petenewcomb/nampipe/batch"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

// fakeLauncher records launches and the highest number of concurrent ones.
type fakeLauncher struct {
	mu       sync.Mutex
	order    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    func(file string) time.Duration
	fail     func(file string) bool
}

func (f *fakeLauncher) Launch(ctx context.Context, file string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.order = append(f.order, file)
	f.mu.Unlock()
	if f.delay != nil {
		time.Sleep(f.delay(file))
	}
	if f.fail != nil && f.fail(file) {
		return errors.New("exit status 1")
	}
	return nil
}

func (f *fakeLauncher) launched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func files(n int) []string {
	fs := make([]string, n)
	for i := range fs {
		fs[i] = fmt.Sprintf("x_%d.in.gz", i)
	}
	return fs
}

func unexpectedRunOne(t *testing.T) func(context.Context, string) error {
	return func(context.Context, string) error {
		t.Error("RunOne called for a multi-file batch")
		return nil
	}
}

func TestNoJobs(t *testing.T) {
	chk := require.New(t)
	s := &batch.Scheduler{}
	_, err := s.Execute(context.Background(), nil)
	chk.ErrorIs(err, batch.ErrNoJobs)
}

func TestSingleFileRunsInProcess(t *testing.T) {
	chk := require.New(t)
	l := &fakeLauncher{}
	var ran []string
	s := &batch.Scheduler{
		Launcher: l,
		RunOne: func(_ context.Context, file string) error {
			ran = append(ran, file)
			return nil
		},
	}
	ok, err := s.Execute(context.Background(), []string{"a_0.in.gz"})
	chk.NoError(err)
	chk.True(ok)
	chk.Equal([]string{"a_0.in.gz"}, ran)
	chk.Empty(l.launched())

	core, logs := observer.New(zapcore.ErrorLevel)
	s.Logger = zap.New(core)
	s.RunOne = func(context.Context, string) error { return errors.New("bad pool") }
	ok, err = s.Execute(context.Background(), []string{"a_0.in.gz"})
	chk.NoError(err)
	chk.False(ok)
	chk.Equal(1, logs.FilterMessage("job failed").Len())
}

func TestLimit(t *testing.T) {
	chk := require.New(t)
	chk.Equal(runtime.NumCPU(), (&batch.Scheduler{}).Limit())
	chk.Equal(3, (&batch.Scheduler{Concurrency: 3}).Limit())
	nmpm1, err := backend.Lookup("nmpm1")
	chk.NoError(err)
	chk.Equal(1, (&batch.Scheduler{Backend: nmpm1, Concurrency: 8}).Limit())
}

func TestExclusiveBackendRunsSerially(t *testing.T) {
	chk := require.New(t)
	nmpm1, err := backend.Lookup("nmpm1")
	chk.NoError(err)
	l := &fakeLauncher{delay: func(string) time.Duration { return time.Millisecond }}
	s := &batch.Scheduler{Backend: nmpm1, Concurrency: 8, Launcher: l, RunOne: unexpectedRunOne(t)}
	ok, err := s.Execute(context.Background(), files(6))
	chk.NoError(err)
	chk.True(ok)
	chk.EqualValues(1, l.peak.Load())
	// Launches pop from the end of the list.
	chk.Equal([]string{"x_5.in.gz", "x_4.in.gz", "x_3.in.gz", "x_2.in.gz", "x_1.in.gz", "x_0.in.gz"}, l.launched())
}

func TestFailureStopsLaunches(t *testing.T) {
	chk := require.New(t)
	core, logs := observer.New(zapcore.InfoLevel)
	l := &fakeLauncher{fail: func(f string) bool { return f == "x_3.in.gz" }}
	s := &batch.Scheduler{Concurrency: 1, Launcher: l, RunOne: unexpectedRunOne(t), Logger: zap.New(core)}
	ok, err := s.Execute(context.Background(), files(4))
	chk.NoError(err)
	chk.False(ok)
	chk.Equal([]string{"x_3.in.gz"}, l.launched())
	chk.Equal(1, logs.FilterMessage("worker failed").Len())
	// The task wrapper reports the failure only at debug level.
	chk.Zero(logs.FilterMessage("task failed").Len())
	failed := logs.FilterMessage("batch failed").All()
	chk.Len(failed, 1)
	chk.EqualValues(3, failed[0].ContextMap()["skipped"])
}

func TestFailureWaitsForRunningWorkers(t *testing.T) {
	chk := require.New(t)
	var finished atomic.Int32
	release := make(chan struct{})
	l := batch.LauncherFunc(func(ctx context.Context, file string) error {
		if file == "x_2.in.gz" {
			return errors.New("exit status 2")
		}
		<-release
		finished.Add(1)
		return nil
	})
	s := &batch.Scheduler{Concurrency: 3, Launcher: l, RunOne: unexpectedRunOne(t)}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	ok, err := s.Execute(context.Background(), files(5))
	chk.NoError(err)
	chk.False(ok)
	// x_4 and x_3 were running when x_2 failed, so both ran to completion.
	chk.EqualValues(2, finished.Load())
}

func TestConcurrencyBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chk := require.New(t)
		n := rapid.IntRange(2, 24).Draw(t, "jobs")
		c := rapid.IntRange(1, 6).Draw(t, "concurrency")
		failing := rapid.SliceOfDistinct(rapid.IntRange(0, n-1), rapid.ID[int]).Draw(t, "failing")
		fail := map[string]bool{}
		for _, i := range failing {
			fail[fmt.Sprintf("x_%d.in.gz", i)] = true
		}
		delays := rapid.SliceOfN(rapid.IntRange(0, 2000), n, n).Draw(t, "delays")
		l := &fakeLauncher{
			delay: func(f string) time.Duration {
				var i int
				fmt.Sscanf(f, "x_%d.in.gz", &i)
				return time.Duration(delays[i]) * time.Microsecond
			},
			fail: func(f string) bool { return fail[f] },
		}
		s := &batch.Scheduler{Concurrency: c, Launcher: l, RunOne: func(context.Context, string) error { return nil }}
		ok, err := s.Execute(context.Background(), files(n))
		chk.NoError(err)
		chk.LessOrEqual(int(l.peak.Load()), c)
		chk.Equal(len(failing) == 0, ok)
		launched := l.launched()
		if ok {
			chk.Len(launched, n)
		} else {
			chk.LessOrEqual(len(launched), n)
		}
		chk.Zero(l.inFlight.Load())
	})
}

func TestCanceledContext(t *testing.T) {
	chk := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &batch.Scheduler{Concurrency: 2, Launcher: &fakeLauncher{}, RunOne: unexpectedRunOne(t)}
	_, err := s.Execute(ctx, files(3))
	chk.ErrorIs(err, context.Canceled)
}

func TestProcessLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	chk := require.New(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "worker.sh")
	record := filepath.Join(dir, "args")
	chk.NoError(os.WriteFile(script, []byte(`#!/bin/sh
echo "$@" > "`+record+`"
case "$5" in *fail*) exit 1;; esac
`), 0o755))

	var out strings.Builder
	l := &batch.ProcessLauncher{Executable: script, Backend: "nmpm1", Analyse: true, Stdout: &out, Stderr: &out}
	chk.Equal([]string{"exec", "--backend", "nmpm1", "--analyse", "a_0.in.gz"}, l.Args("a_0.in.gz"))
	chk.NoError(l.Launch(context.Background(), "a_0.in.gz"))
	got, err := os.ReadFile(record)
	chk.NoError(err)
	chk.Equal("exec --backend nmpm1 --analyse a_0.in.gz\n", string(got))

	chk.Error(l.Launch(context.Background(), "fail_0.in.gz"))

	l.Analyse = false
	chk.Equal([]string{"exec", "--backend", "nmpm1", "b.in.gz"}, l.Args("b.in.gz"))
}
