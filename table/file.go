// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package table

import (
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/petenewcomb/nampipe/network"
)

// Value is a float64 that survives JSON encoding when it is infinite or NaN.
// Such values are written as the strings "Inf", "-Inf" and "NaN".
type Value float64

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"NaN"`:
		*v = Value(math.NaN())
	case `"Inf"`:
		*v = Value(math.Inf(1))
	case `"-Inf"`:
		*v = Value(math.Inf(-1))
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid table value %s", b)
		}
		*v = Value(f)
	}
	return nil
}

// record is the persisted form of a Table. Cursor and Size are present only
// for accumulating tables.
type record struct {
	Keys      []string      `json:"keys"`
	Dims      int           `json:"dims"`
	Simulator string        `json:"simulator"`
	Times     network.Times `json:"times"`
	Cursor    *int          `json:"idx,omitempty"`
	Size      *int          `json:"size,omitempty"`
	Data      [][]Value     `json:"data"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	r := record{
		Keys:      t.keys,
		Dims:      t.dims,
		Simulator: t.simulator,
		Times:     t.times,
		Data:      make([][]Value, t.idx),
	}
	if t.phase == Accumulating {
		idx, size := t.idx, t.size
		r.Cursor, r.Size = &idx, &size
	}
	for i := range r.Data {
		row := t.Row(i)
		r.Data[i] = make([]Value, len(row))
		for j, v := range row {
			r.Data[i][j] = Value(v)
		}
	}
	return json.Marshal(r)
}

func (t *Table) UnmarshalJSON(b []byte) error {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if len(r.Keys) == 0 {
		return fmt.Errorf("table has no keys")
	}
	if r.Dims < 0 || r.Dims > len(r.Keys) {
		return fmt.Errorf("table dims %d out of range for %d keys", r.Dims, len(r.Keys))
	}
	size := len(r.Data)
	if r.Size != nil {
		size = *r.Size
	}
	if r.Cursor != nil && *r.Cursor != len(r.Data) {
		return fmt.Errorf("table cursor %d does not match %d rows", *r.Cursor, len(r.Data))
	}
	if size < len(r.Data) {
		return fmt.Errorf("table holds %d rows but has room for %d", len(r.Data), size)
	}
	nt := New(r.Keys, r.Dims, size, r.Simulator)
	for _, vs := range r.Data {
		row := make([]float64, len(vs))
		for j, v := range vs {
			row[j] = float64(v)
		}
		if err := nt.Append(row); err != nil {
			return err
		}
	}
	nt.times = r.Times
	if r.Cursor == nil {
		nt.phase = Finalized
	}
	*t = *nt
	return nil
}

// WriteFile stores the set as JSON, gzip-compressed if name ends in ".gz".
func WriteFile(name string, s Set) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(name, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// ReadFile loads a set written by WriteFile.
func ReadFile(name string) (Set, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	}
	var s Set
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return s, nil
}
