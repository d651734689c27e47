// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/petenewcomb/nampipe/network"
)

// OutputName returns the name of the file the job in the named pool file
// produces: raw results, or analysed part tables if analyse is set.
func OutputName(input string, analyse bool) string {
	base := strings.TrimSuffix(input, network.PoolSuffix)
	if analyse {
		return base + network.AnalysedSuffix
	}
	return base + network.ResultSuffix
}

// MissingFilesError lists files that were expected to exist but do not.
type MissingFilesError struct {
	// Kind describes the role of the files, such as "input" or "output".
	Kind  string
	Files []string
}

func (e *MissingFilesError) Error() string {
	if len(e.Files) == 1 {
		return fmt.Sprintf("%s file %s does not exist", e.Kind, e.Files[0])
	}
	return fmt.Sprintf("%d %s files do not exist: %s", len(e.Files), e.Kind, strings.Join(e.Files, ", "))
}

// MissingOutputsError reports job outputs absent after a batch.
type MissingOutputsError = MissingFilesError

// checkFiles returns a *MissingFilesError naming every file that does not
// exist, or any other error encountered while checking.
func checkFiles(kind string, files []string) error {
	var missing []string
	for _, f := range files {
		info, err := os.Stat(f)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, f)
		case err != nil:
			return err
		case info.IsDir():
			return fmt.Errorf("%s file %s is a directory", kind, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFilesError{Kind: kind, Files: missing}
	}
	return nil
}

// CheckInputs verifies that every named input file exists.
func CheckInputs(files []string) error {
	return checkFiles("input", files)
}

// CheckOutputs verifies that every expected output file exists.
func CheckOutputs(files []string) error {
	return checkFiles("output", files)
}
