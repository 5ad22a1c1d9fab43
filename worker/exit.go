package worker

import (
	"errors"
	"fmt"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/fiobench"
	"github.com/fusebench/FuseBench/jobspec"
	"github.com/fusebench/FuseBench/mount"
)

// Process exit codes. The failed manifest's error_code carries the same
// value so the coordinator can tell error classes apart without logs.
const (
	ExitOK        = 0
	ExitGeneric   = 1
	ExitConfig    = 2
	ExitMount     = 3
	ExitBenchmark = 4
)

// RunProtected invokes fn and converts a panic into an ordinary error, so
// every termination path funnels through the failure finalizer and the
// manifest never stays running after a crash.
func RunProtected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return fn()
}

// ExitCode maps a fatal worker error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, jobspec.ErrNotFound), errors.Is(err, artifactstore.ErrNotFound):
		return ExitConfig
	case errors.Is(err, mount.ErrMountFailed):
		return ExitMount
	case errors.Is(err, fiobench.ErrBenchmarkFailed):
		return ExitBenchmark
	default:
		return ExitGeneric
	}
}
