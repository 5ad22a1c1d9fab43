package jobspec

import (
	"context"
	"errors"
	"testing"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

func TestJobValidate(t *testing.T) {
	valid := func() *BenchmarkJob {
		return &BenchmarkJob{
			BenchmarkID: "bench1",
			Node:        "node-0",
			Bucket:      "data-bucket",
			Iterations:  3,
			TestIDs:     []uint{1, 2},
			TotalTests:  2,
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		mutate func(*BenchmarkJob)
	}{
		{"no benchmark id", func(j *BenchmarkJob) { j.BenchmarkID = "" }},
		{"no bucket", func(j *BenchmarkJob) { j.Bucket = "" }},
		{"zero iterations", func(j *BenchmarkJob) { j.Iterations = 0 }},
		{"no test ids", func(j *BenchmarkJob) { j.TestIDs = nil }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			j := valid()
			c.mutate(j)
			if j.Validate() == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadJob(t *testing.T) {
	store := artifactstore.NewMemStore()
	want := &BenchmarkJob{
		BenchmarkID: "bench1",
		Node:        "node-0",
		Bucket:      "data-bucket",
		Iterations:  2,
		TestIDs:     []uint{3, 4, 5},
		TotalTests:  3,
	}
	err := artifactstore.UploadJSON(context.Background(), store, artifactstore.JobKey("bench1", "node-0"), want)
	if err != nil {
		t.Fatal(err)
	}

	got, err := LoadJob(context.Background(), store, "bench1", "node-0")
	if err != nil {
		t.Fatal(err)
	}
	if got.BenchmarkID != want.BenchmarkID || got.Bucket != want.Bucket || got.Iterations != want.Iterations {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.TestIDs) != 3 || got.TestIDs[0] != 3 {
		t.Fatalf("got test ids %v, want %v", got.TestIDs, want.TestIDs)
	}

	t.Run("missing job", func(t *testing.T) {
		_, err := LoadJob(context.Background(), store, "bench1", "node-9")
		if !errors.Is(err, artifactstore.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}
