package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alitto/pond"
	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/config"
	"github.com/fusebench/FuseBench/jobspec"
	"github.com/fusebench/FuseBench/manifest"
	"github.com/fusebench/FuseBench/report"
	"github.com/fusebench/FuseBench/target"
	"github.com/fusebench/FuseBench/util"
	"github.com/schollz/progressbar/v3"
)

// A Coordinator runs one benchmark across a static set of nodes: it splits
// the test matrix, publishes the shared inputs and per-node jobs, starts a
// worker on each node, and polls the node manifests until every worker
// reaches a terminal status.
type Coordinator struct {
	input       *Input
	benchmarkID string
	assignments []Assignment
	matrix      *jobspec.TestMatrix
}

type Input struct {
	Store   artifactstore.Store
	Targets []target.Target
	Config  *config.RunConfig

	// DataBucket is the bucket the workers mount and benchmark against.
	// ArtifactsBucket and Endpoint are forwarded to the worker command line
	// so the workers read and write the same artifact store.
	DataBucket      string
	ArtifactsBucket string
	Endpoint        string

	Iterations uint

	// WorkerBinary is the path of the worker binary on each node.
	// RemoteWorkDir holds the worker's scratch space and log file.
	WorkerBinary  string
	RemoteWorkDir string

	PollInterval      time.Duration
	WaitTimeout       time.Duration
	LaunchConcurrency int // all nodes at once by default
}

func New(input *Input) *Coordinator {
	if input.PollInterval == 0 {
		input.PollInterval = 10 * time.Second
	}
	if input.LaunchConcurrency == 0 {
		input.LaunchConcurrency = len(input.Targets)
	}
	return &Coordinator{
		input:       input,
		benchmarkID: fmt.Sprintf("fusebench-%s", util.Randstring(8)),
	}
}

func (c *Coordinator) BenchmarkID() string {
	return c.benchmarkID
}

// Prepare loads the matrix, splits it across the nodes, and uploads the
// shared inputs plus one job document per node. Nothing runs yet; a failed
// Prepare leaves no workers to clean up.
func (c *Coordinator) Prepare(ctx context.Context, matrixCSV, jobfile []byte) error {
	matrix, err := jobspec.LoadMatrix(bytes.NewReader(matrixCSV))
	if err != nil {
		return err
	}
	c.matrix = matrix

	err = c.input.Store.Upload(ctx, artifactstore.TestCasesKey(c.benchmarkID), bytes.NewReader(matrixCSV))
	if err != nil {
		return fmt.Errorf("uploading test matrix failed: %w", err)
	}
	err = c.input.Store.Upload(ctx, artifactstore.JobfileKey(c.benchmarkID), bytes.NewReader(jobfile))
	if err != nil {
		return fmt.Errorf("uploading jobfile failed: %w", err)
	}
	err = artifactstore.UploadJSON(ctx, c.input.Store, artifactstore.ConfigKey(c.benchmarkID), c.input.Config.Document())
	if err != nil {
		return fmt.Errorf("uploading run config failed: %w", err)
	}

	nodes := make([]string, len(c.input.Targets))
	for i, t := range c.input.Targets {
		nodes[i] = t.Name()
	}
	c.assignments = DistributeTests(matrix.IDs(), nodes)

	for _, a := range c.assignments {
		if len(a.TestIDs) == 0 {
			slog.Warn("node has no tests assigned", slog.String("node", a.Node))
			continue
		}
		job := &jobspec.BenchmarkJob{
			BenchmarkID: c.benchmarkID,
			Node:        a.Node,
			Bucket:      c.input.DataBucket,
			Iterations:  c.input.Iterations,
			TestIDs:     a.TestIDs,
			TotalTests:  len(a.TestIDs),
		}
		err = artifactstore.UploadJSON(ctx, c.input.Store, artifactstore.JobKey(c.benchmarkID, a.Node), job)
		if err != nil {
			return fmt.Errorf("uploading job for node %s failed: %w", a.Node, err)
		}
		slog.Debug("published job", slog.String("node", a.Node), slog.Int("tests", len(a.TestIDs)))
	}
	slog.Info("benchmark prepared", slog.String("benchmarkID", c.benchmarkID), slog.Int("tests", matrix.Len()), slog.Int("nodes", len(nodes)))
	return nil
}

// Launch starts a detached worker on every node that has tests. Launch
// failures on some nodes do not stop the others; the caller gets a single
// joined error and the healthy workers keep running.
func (c *Coordinator) Launch(ctx context.Context) error {
	errCh := make(chan error, len(c.input.Targets))
	pool := pond.New(c.input.LaunchConcurrency, 0, pond.MinWorkers(c.input.LaunchConcurrency), pond.Context(ctx))
	for _, t := range c.input.Targets {
		t := t
		a := c.assignment(t.Name())
		if a == nil || len(a.TestIDs) == 0 {
			continue
		}
		pool.Submit(func() {
			logPath := path.Join(c.input.RemoteWorkDir, fmt.Sprintf("worker-%s.log", c.benchmarkID))
			err := t.StartDetached(c.workerCommand(t.Name()), logPath)
			if err != nil {
				errCh <- fmt.Errorf("launching worker on %s failed: %w", t.Name(), err)
				return
			}
			slog.Info("worker launched", slog.String("node", t.Name()))
		})
	}
	pool.StopAndWait()
	close(errCh)

	errs := []string{}
	for err := range errCh {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("worker launch failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Coordinator) workerCommand(node string) string {
	cmd := fmt.Sprintf("%s -benchmark-id %s -node %s -artifacts-bucket %s -work-dir %s",
		c.input.WorkerBinary, c.benchmarkID, node, c.input.ArtifactsBucket, c.input.RemoteWorkDir)
	if c.input.Endpoint != "" {
		cmd += fmt.Sprintf(" -endpoint %s", c.input.Endpoint)
	}
	return cmd
}

func (c *Coordinator) assignment(node string) *Assignment {
	for i := range c.assignments {
		if c.assignments[i].Node == node {
			return &c.assignments[i]
		}
	}
	return nil
}

// Wait polls each launched node's manifest until every node is terminal or
// the wait timeout passes. The manifests are returned in node launch order,
// failed nodes included.
func (c *Coordinator) Wait(ctx context.Context) ([]*manifest.Manifest, error) {
	pending := map[string]bool{}
	for _, a := range c.assignments {
		if len(a.TestIDs) > 0 {
			pending[a.Node] = true
		}
	}

	done := map[string]*manifest.Manifest{}
	p := progressbar.Default(int64(len(pending)), "Waiting for nodes:")
	var deadline time.Time
	if c.input.WaitTimeout > 0 {
		deadline = time.Now().Add(c.input.WaitTimeout)
	}

	for len(pending) > 0 {
		for node := range pending {
			m := &manifest.Manifest{}
			err := artifactstore.DownloadJSON(ctx, c.input.Store, artifactstore.ManifestKey(c.benchmarkID, node), m)
			if err != nil {
				// The manifest appears once the worker initializes; absence
				// just means the node is still starting.
				slog.Debug("manifest not ready", slog.String("node", node), slog.String("error", err.Error()))
				continue
			}
			if m.Status == manifest.StatusRunning {
				slog.Debug("node still running", slog.String("node", node), slog.Int("testsDone", len(m.Tests)))
				continue
			}
			slog.Info("node finished", slog.String("node", node), slog.String("status", string(m.Status)), slog.Int("errorCode", m.ErrorCode))
			done[node] = m
			delete(pending, node)
			p.Add(1)
		}
		if len(pending) == 0 {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			nodes := make([]string, 0, len(pending))
			for node := range pending {
				nodes = append(nodes, node)
			}
			return nil, fmt.Errorf("timed out waiting for nodes: %s", strings.Join(nodes, ", "))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.input.PollInterval):
		}
	}

	out := []*manifest.Manifest{}
	for _, a := range c.assignments {
		if m, ok := done[a.Node]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Run drives the whole flow and aggregates the results into a report.
func (c *Coordinator) Run(ctx context.Context, matrixCSV, jobfile []byte) (*report.Report, error) {
	err := c.Prepare(ctx, matrixCSV, jobfile)
	if err != nil {
		return nil, err
	}
	err = c.Launch(ctx)
	if err != nil {
		return nil, err
	}
	manifests, err := c.Wait(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := Aggregate(ctx, c.input.Store, c.benchmarkID, manifests, c.input.Iterations)
	if err != nil {
		return nil, err
	}
	rep.Config = c.input.Config.Document()
	return rep, nil
}
