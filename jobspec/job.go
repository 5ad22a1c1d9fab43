package jobspec

import (
	"context"
	"fmt"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

// A BenchmarkJob is one node's share of a benchmark run, produced by the
// coordinator and read back by the worker. Immutable once loaded.
type BenchmarkJob struct {
	BenchmarkID string `json:"benchmark_id"`
	Node        string `json:"node"`
	Bucket      string `json:"bucket"`
	Iterations  uint   `json:"iterations"`
	TestIDs     []uint `json:"test_ids"`
	TotalTests  int    `json:"total_tests"`
}

func (j *BenchmarkJob) Validate() error {
	if j.BenchmarkID == "" {
		return fmt.Errorf("job has no benchmark_id")
	}
	if j.Bucket == "" {
		return fmt.Errorf("job has no bucket")
	}
	if j.Iterations == 0 {
		return fmt.Errorf("job has zero iterations")
	}
	if len(j.TestIDs) == 0 {
		return fmt.Errorf("job has no test ids")
	}
	return nil
}

// LoadJob fetches and validates the node's job assignment.
func LoadJob(ctx context.Context, store artifactstore.Store, benchmarkID, node string) (*BenchmarkJob, error) {
	job := &BenchmarkJob{}
	err := artifactstore.DownloadJSON(ctx, store, artifactstore.JobKey(benchmarkID, node), job)
	if err != nil {
		return nil, fmt.Errorf("loading job for node %s failed: %w", node, err)
	}
	err = job.Validate()
	if err != nil {
		return nil, err
	}
	return job, nil
}
