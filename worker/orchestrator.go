package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/config"
	"github.com/fusebench/FuseBench/jobspec"
	"github.com/fusebench/FuseBench/manifest"
	"github.com/fusebench/FuseBench/mount"
	resourcemonitor "github.com/fusebench/FuseBench/resource_monitor"
)

// A Mounter manages the mount/unmount cycle of the filesystem driver.
type Mounter interface {
	Acquire(ctx context.Context, bucket, targetPath string) (*mount.ProcessHandle, error)
	Release(targetPath string) error
}

// A Runner executes one benchmark iteration against a mounted path.
type Runner interface {
	Run(ctx context.Context, jobfilePath, mountedPath, outputPath string, params jobspec.TestCaseParams) error
}

// A Monitor samples the driver process while one iteration runs.
type Monitor interface {
	Start()
	Stop() []resourcemonitor.Sample
	SignalStop()
}

// An Orchestrator drives one node's share of a benchmark run: for each
// assigned test case, for each iteration, mount, sample, run fio, unmount;
// then aggregate telemetry, append the result, and publish artifacts.
type Orchestrator struct {
	input *Input
}

type Input struct {
	Job     *jobspec.BenchmarkJob
	Matrix  *jobspec.TestMatrix
	Config  *config.RunConfig
	Store   artifactstore.Store
	Tracker *manifest.Tracker
	Mounter Mounter
	Runner  Runner

	// MountPath is the local mount point, ScratchDir holds fio outputs
	// before publication, JobfilePath is the downloaded workload template.
	MountPath   string
	ScratchDir  string
	JobfilePath string

	// NewMonitor is swappable for tests. Defaults to resourcemonitor.New
	// with the configured sampling interval.
	NewMonitor func(pid int) Monitor
}

func New(input *Input) *Orchestrator {
	if input.NewMonitor == nil {
		interval := input.Config.SampleInterval()
		input.NewMonitor = func(pid int) Monitor {
			return resourcemonitor.New(pid, interval)
		}
	}
	return &Orchestrator{input: input}
}

// Run executes the whole assignment and finalizes the manifest as completed.
// Any error it returns is fatal for the worker; the caller funnels it into
// the failure finalizer.
func (o *Orchestrator) Run(ctx context.Context) error {
	job := o.input.Job
	processed := 0
	for _, testID := range job.TestIDs {
		// A test id without a matrix row fails the whole job; skipping would
		// silently shrink the run.
		params, err := o.input.Matrix.Resolve(testID)
		if err != nil {
			return err
		}

		err = o.runTestCase(ctx, params)
		if err != nil {
			if !o.input.Config.ContinueOnFailure {
				return err
			}
			slog.Error("test case failed, continuing", slog.Int("testID", int(testID)), slog.String("error", err.Error()))
			appendErr := o.input.Tracker.AppendResult(ctx, manifest.TestResult{
				TestID: testID,
				Status: manifest.TestFailed,
				Params: params,
			})
			if appendErr != nil {
				return appendErr
			}
		}
		processed++
	}

	err := o.input.Tracker.FinalizeCompleted(ctx, processed)
	if err != nil {
		return err
	}
	slog.Info("all test cases processed", slog.Int("total", processed))
	return nil
}

func (o *Orchestrator) runTestCase(ctx context.Context, params jobspec.TestCaseParams) error {
	job := o.input.Job
	slog.Info("starting test case", slog.Int("testID", int(params.TestID)), slog.String("blockSize", params.BlockSize), slog.String("objectSize", params.ObjectSize), slog.String("pattern", params.IOPattern))

	allSamples := []resourcemonitor.Sample{}
	for i := 1; i <= int(job.Iterations); i++ {
		samples, err := o.runIteration(ctx, params, i)
		if err != nil {
			return fmt.Errorf("test %d iteration %d: %w", params.TestID, i, err)
		}
		allSamples = append(allSamples, samples...)

		// Let the driver process exit fully before remounting.
		if i < int(job.Iterations) {
			time.Sleep(o.input.Config.SettleDelay())
		}
	}

	// The aggregate spans the whole test case, not per-iteration.
	usage := resourcemonitor.Reduce(allSamples)
	err := o.input.Tracker.AppendResult(ctx, manifest.TestResult{
		TestID: params.TestID,
		Status: manifest.TestSuccess,
		Params: params,
		Usage:  usage,
	})
	if err != nil {
		return err
	}

	o.publishTestArtifacts(ctx, params, allSamples)
	slog.Info("finished test case", slog.Int("testID", int(params.TestID)), slog.Float64("avgCPU", usage.AvgCPU), slog.Float64("peakRSSMb", usage.PeakRSSMb))
	return nil
}

// runIteration performs one mount → sample+benchmark → unmount cycle. The
// monitor is stopped and joined strictly before the mount is released.
func (o *Orchestrator) runIteration(ctx context.Context, params jobspec.TestCaseParams, iteration int) (samples []resourcemonitor.Sample, err error) {
	// The output directory lives outside the mount; create it before any
	// resource is held so a failure here releases nothing out of order.
	outputPath := o.fioOutputPath(params.TestID, iteration)
	err = os.MkdirAll(path.Dir(outputPath), 0o755)
	if err != nil {
		return nil, err
	}

	handle, err := o.input.Mounter.Acquire(ctx, o.input.Job.Bucket, o.input.MountPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		relErr := o.input.Mounter.Release(o.input.MountPath)
		if relErr != nil && err == nil {
			err = relErr
		}
	}()

	mon := o.input.NewMonitor(handle.PID)
	mon.Start()
	defer mon.SignalStop() // backstop; the normal path joins below

	runErr := o.input.Runner.Run(ctx, o.input.JobfilePath, o.input.MountPath, outputPath, params)

	samples = mon.Stop()
	if runErr != nil {
		return nil, runErr
	}
	return samples, nil
}

// publishTestArtifacts uploads the per-iteration fio outputs and the
// telemetry series. Best effort: a missed artifact upload must not fail a
// test case whose result is already recorded.
func (o *Orchestrator) publishTestArtifacts(ctx context.Context, params jobspec.TestCaseParams, samples []resourcemonitor.Sample) {
	job := o.input.Job
	for i := 1; i <= int(job.Iterations); i++ {
		buf, err := os.ReadFile(o.fioOutputPath(params.TestID, i))
		if err != nil {
			slog.Warn("missing fio output", slog.Int("testID", int(params.TestID)), slog.Int("iteration", i), slog.String("error", err.Error()))
			continue
		}
		key := artifactstore.FioOutputKey(job.BenchmarkID, job.Node, params.TestID, i)
		err = o.input.Store.Upload(ctx, key, bytes.NewReader(buf))
		if err != nil {
			slog.Warn("uploading fio output failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	key := artifactstore.ResourceUsageKey(job.BenchmarkID, job.Node, params.TestID)
	err := o.input.Store.Upload(ctx, key, bytes.NewReader(resourcemonitor.EncodeCSV(samples)))
	if err != nil {
		slog.Warn("uploading resource usage failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) fioOutputPath(testID uint, iteration int) string {
	return path.Join(o.input.ScratchDir, fmt.Sprintf("test-%d", testID), fmt.Sprintf("fio_output_%d.json", iteration))
}
