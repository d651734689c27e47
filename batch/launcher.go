// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ProcessLauncher runs each job file in a new process of the given
// executable, invoked as "exec --backend <backend> [--analyse] <file>".
//
// Worker processes are not tied to the launch context: once started they run
// to completion.
type ProcessLauncher struct {
	// Executable defaults to the running program.
	Executable string
	Backend    string
	Analyse    bool
	// Stdout and Stderr receive the worker's output. Nil means the parent's
	// standard error.
	Stdout io.Writer
	Stderr io.Writer
}

// Args returns the arguments passed to the worker for file.
func (l *ProcessLauncher) Args(file string) []string {
	args := []string{"exec", "--backend", l.Backend}
	if l.Analyse {
		args = append(args, "--analyse")
	}
	return append(args, file)
}

func (l *ProcessLauncher) Launch(ctx context.Context, file string) error {
	exe := l.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("locating executable: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(exe, l.Args(file)...)
	cmd.Stdout = orStderr(l.Stdout)
	cmd.Stderr = orStderr(l.Stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("worker for %s: %w", file, err)
	}
	return nil
}

func orStderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}
