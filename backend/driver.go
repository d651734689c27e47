// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/petenewcomb/nampipe/network"
)

// Driver runs pools through an external driver program. The pool is written
// to the program's standard input as JSON and the program must write the
// network.Output to its standard output, also as JSON.
type Driver struct {
	Path string
	Args []string
}

func (d *Driver) Run(ctx context.Context, pool *network.Pool) (*network.Output, network.Times, error) {
	var times network.Times
	start := time.Now()

	var stdin, stdout, stderr bytes.Buffer
	if err := network.EncodePool(&stdin, pool); err != nil {
		return nil, times, err
	}
	cmd := exec.CommandContext(ctx, d.Path, d.Args...)
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	times.Initialize = time.Since(start)

	simStart := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, times, fmt.Errorf("running driver %s: %w: %s", d.Path, err, msg)
		}
		return nil, times, fmt.Errorf("running driver %s: %w", d.Path, err)
	}
	times.Sim = time.Since(simStart)

	finStart := time.Now()
	out, err := network.DecodeOutput(&stdout)
	if err != nil {
		return nil, times, err
	}
	times.Finalize = time.Since(finStart)
	times.Total = time.Since(start)
	return out, times, nil
}
