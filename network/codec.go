// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package network

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// File name suffixes of the pipeline's intermediate files.
const (
	PoolSuffix     = ".in.gz"
	ResultSuffix   = ".out.gz"
	AnalysedSuffix = ".out.tbl.gz"
)

// WritePool stores a pool as gzip-compressed JSON.
func WritePool(name string, p *Pool) error {
	return writeGzipJSON(name, p)
}

// ReadPool loads a pool written by WritePool.
func ReadPool(name string) (*Pool, error) {
	var p Pool
	if err := readGzipJSON(name, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// WriteResult stores a result as gzip-compressed JSON.
func WriteResult(name string, r *Result) error {
	return writeGzipJSON(name, r)
}

// ReadResult loads a result written by WriteResult.
func ReadResult(name string) (*Result, error) {
	var r Result
	if err := readGzipJSON(name, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodePool writes a pool as plain JSON, the form external backend drivers
// read on their standard input.
func EncodePool(w io.Writer, p *Pool) error {
	return json.NewEncoder(w).Encode(p)
}

// DecodeOutput reads backend output as plain JSON.
func DecodeOutput(r io.Reader) (*Output, error) {
	var out Output
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding backend output: %w", err)
	}
	return &out, nil
}

func writeGzipJSON(name string, v any) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return zw.Close()
}

func readGzipJSON(name string, v any) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
