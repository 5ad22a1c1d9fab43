package report

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/fusebench/FuseBench/jobspec"
	"github.com/fusebench/FuseBench/manifest"
	resourcemonitor "github.com/fusebench/FuseBench/resource_monitor"
)

// TestMetrics are one test case's numbers averaged across its iterations,
// joined with the driver resource usage from the node's manifest.
type TestMetrics struct {
	TestID             uint
	Node               string
	Params             jobspec.TestCaseParams
	Iterations         int
	ReadBandwidthMBps  float64
	WriteBandwidthMBps float64
	ReadIOPS           float64
	WriteIOPS          float64
	MeanReadLatMs      float64
	MeanWriteLatMs     float64
	Usage              resourcemonitor.AggregatedUsage
}

// A Report is the aggregate over all nodes of one benchmark run.
type Report struct {
	BenchmarkID string
	Config      map[string]any
	Manifests   []*manifest.Manifest
	Tests       []*TestMetrics
}

// SortTests orders the per-test metrics by test id for stable output.
func (r *Report) SortTests() {
	sort.Slice(r.Tests, func(i, j int) bool { return r.Tests[i].TestID < r.Tests[j].TestID })
}

// Summary renders the fixed-width result table.
func (r *Report) Summary() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "--- Benchmark Summary: %s ---\n", r.BenchmarkID)
	w := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Test\tNode\tBS\tSize\tDepth\tPattern\tThreads\tFiles\tRead MB/s\tWrite MB/s\tRead IOPS\tAvg CPU %\tPeak RSS MB")
	for _, t := range r.Tests {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			t.TestID, t.Node, t.Params.BlockSize, t.Params.ObjectSize, t.Params.IODepth, t.Params.IOPattern,
			t.Params.ThreadCount, t.Params.FileCount,
			t.ReadBandwidthMBps, t.WriteBandwidthMBps, t.ReadIOPS,
			t.Usage.AvgCPU, t.Usage.PeakRSSMb,
		)
	}
	w.Flush()

	completed, failed := 0, 0
	for _, m := range r.Manifests {
		switch m.Status {
		case manifest.StatusCompleted:
			completed++
		case manifest.StatusFailed:
			failed++
		}
	}
	fmt.Fprintf(buf, "nodes: %d completed, %d failed\n", completed, failed)
	return buf.String()
}
