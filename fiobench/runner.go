package fiobench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"

	"github.com/fusebench/FuseBench/jobspec"
)

// ErrBenchmarkFailed is returned when fio exits non-zero.
var ErrBenchmarkFailed = errors.New("benchmark failed")

// A Runner executes one fio iteration against a mounted path. The job file
// is an externally supplied template; test-case parameters reach it through
// fio's environment variable substitution.
type Runner struct {
	fioBinary string
}

func NewRunner(fioBinary string) *Runner {
	return &Runner{fioBinary: fioBinary}
}

// DataDir is the fio working directory for a test case, rooted under the
// mount by object size so concurrent test cases never collide on paths.
func DataDir(mountedPath string, params jobspec.TestCaseParams) string {
	return path.Join(mountedPath, fmt.Sprintf("data-%s", strings.ToLower(params.ObjectSize)))
}

// Run invokes fio once and writes its JSON metrics output to outputPath.
func (r *Runner) Run(ctx context.Context, jobfilePath, mountedPath, outputPath string, params jobspec.TestCaseParams) error {
	dataDir := DataDir(mountedPath, params)
	err := os.MkdirAll(dataDir, 0o755)
	if err != nil {
		return fmt.Errorf("creating data dir %s failed: %w", dataDir, err)
	}

	cmd := exec.CommandContext(ctx, r.fioBinary, Args(jobfilePath, outputPath, dataDir)...)
	cmd.Env = append(os.Environ(), Env(params, dataDir)...)
	slog.Info("running fio", slog.Int("testID", int(params.TestID)), slog.String("dataDir", dataDir))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("fio exited: %s: %w", strings.TrimSpace(string(out)), ErrBenchmarkFailed)
	}
	return nil
}

func Args(jobfilePath, outputPath, dataDir string) []string {
	return []string{
		jobfilePath,
		"--output-format=json",
		"--output=" + outputPath,
		"--directory=" + dataDir,
	}
}

// Env is the substitution set the job file template may reference.
func Env(params jobspec.TestCaseParams, dataDir string) []string {
	return []string{
		"BLOCK_SIZE=" + params.BlockSize,
		"FILE_SIZE=" + params.ObjectSize,
		"IO_DEPTH=" + strconv.Itoa(params.IODepth),
		"IO_PATTERN=" + params.IOPattern,
		"NUM_THREADS=" + strconv.Itoa(params.ThreadCount),
		"NR_FILES=" + strconv.Itoa(params.FileCount),
		"DATA_DIR=" + dataDir,
	}
}
