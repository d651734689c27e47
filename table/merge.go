// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package table

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Reserved reports whether name is reserved for bookkeeping entries that are
// never merged.
func Reserved(name string) bool {
	return strings.HasPrefix(name, "__")
}

// Merge copies the valid rows of every table in from into the table of the
// same name in into, and sums their timings. Tables missing from into are
// adopted as copies. A nil into is replaced by a new Set, which is returned.
//
// Nothing is modified unless every table can be merged.
func Merge(into, from Set) (Set, error) {
	if into == nil {
		into = make(Set, len(from))
	}
	for name, src := range from {
		if Reserved(name) {
			continue
		}
		if src.phase == Finalized {
			return into, fmt.Errorf("%w: cannot merge from %q", ErrFinalized, name)
		}
		dst, ok := into[name]
		if !ok {
			continue
		}
		if dst.phase == Finalized {
			return into, fmt.Errorf("%w: cannot merge into %q", ErrFinalized, name)
		}
		if dst.dims != src.dims || !slices.Equal(dst.keys, src.keys) {
			return into, fmt.Errorf("%w: %q", ErrKeyMismatch, name)
		}
		if dst.size-dst.idx < src.idx {
			return into, fmt.Errorf("%w: %q has room for %d rows, merging %d",
				ErrCapacity, name, dst.size-dst.idx, src.idx)
		}
	}
	for name, src := range from {
		if Reserved(name) {
			continue
		}
		dst, ok := into[name]
		if !ok {
			into[name] = src.Clone()
			continue
		}
		if src.idx > 0 {
			cols := len(src.keys)
			block := dst.data.Slice(dst.idx, dst.idx+src.idx, 0, cols).(*mat.Dense)
			block.Copy(src.data.Slice(0, src.idx, 0, cols))
			dst.idx += src.idx
		}
		dst.AddTimes(src.times)
	}
	return into, nil
}
