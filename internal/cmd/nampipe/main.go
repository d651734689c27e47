// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command nampipe creates, executes and analyses neural associative memory
// experiments.
package main

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		color.New(color.FgRed).Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
