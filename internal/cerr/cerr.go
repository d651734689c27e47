// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package cerr provides a string type usable for constant sentinel errors.
package cerr

// Error is a sentinel error that can be declared with const, so that it can
// neither be reassigned nor compared by accident against a wrapped copy.
type Error string

func (e Error) Error() string {
	return string(e)
}
