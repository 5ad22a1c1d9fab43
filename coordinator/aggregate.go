package coordinator

import (
	"context"
	"log/slog"

	"github.com/alitto/pond"
	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/fiobench"
	"github.com/fusebench/FuseBench/manifest"
	"github.com/fusebench/FuseBench/report"
)

const aggregateConcurrency = 16

// Aggregate downloads the fio outputs of every successful test on every
// completed node and reduces them to per-test metrics averaged across
// iterations. Failed nodes still appear in the report's manifests; their
// tests carry no metrics.
func Aggregate(ctx context.Context, store artifactstore.Store, benchmarkID string, manifests []*manifest.Manifest, iterations uint) (*report.Report, error) {
	rep := &report.Report{
		BenchmarkID: benchmarkID,
		Manifests:   manifests,
	}

	metricsCh := make(chan *report.TestMetrics, totalTests(manifests))
	pool := pond.New(aggregateConcurrency, 0, pond.MinWorkers(aggregateConcurrency), pond.Context(ctx))
	for _, m := range manifests {
		if m.Status != manifest.StatusCompleted {
			continue
		}
		m := m
		for _, result := range m.Tests {
			if result.Status != manifest.TestSuccess {
				continue
			}
			result := result
			pool.Submit(func() {
				metricsCh <- aggregateTest(ctx, store, benchmarkID, m.Node, result, iterations)
			})
		}
	}
	pool.StopAndWait()
	close(metricsCh)

	for tm := range metricsCh {
		rep.Tests = append(rep.Tests, tm)
	}
	rep.SortTests()
	return rep, nil
}

// aggregateTest averages one test's fio metrics over its iterations. An
// unreadable or unparsable iteration is skipped with a warning rather than
// sinking the whole aggregation.
func aggregateTest(ctx context.Context, store artifactstore.Store, benchmarkID, node string, result manifest.TestResult, iterations uint) *report.TestMetrics {
	tm := &report.TestMetrics{
		TestID: result.TestID,
		Node:   node,
		Params: result.Params,
		Usage:  result.Usage,
	}

	parsed := 0
	for i := 1; i <= int(iterations); i++ {
		key := artifactstore.FioOutputKey(benchmarkID, node, result.TestID, i)
		buf, err := store.Download(ctx, key)
		if err != nil {
			slog.Warn("fio output missing", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		m, err := fiobench.ParseOutput(buf)
		if err != nil {
			slog.Warn("fio output unparsable", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		tm.ReadBandwidthMBps += m.ReadBandwidthMBps
		tm.WriteBandwidthMBps += m.WriteBandwidthMBps
		tm.ReadIOPS += m.ReadIOPS
		tm.WriteIOPS += m.WriteIOPS
		tm.MeanReadLatMs += m.MeanReadLatMs
		tm.MeanWriteLatMs += m.MeanWriteLatMs
		parsed++
	}
	tm.Iterations = parsed
	if parsed > 0 {
		n := float64(parsed)
		tm.ReadBandwidthMBps /= n
		tm.WriteBandwidthMBps /= n
		tm.ReadIOPS /= n
		tm.WriteIOPS /= n
		tm.MeanReadLatMs /= n
		tm.MeanWriteLatMs /= n
	}
	return tm
}

func totalTests(manifests []*manifest.Manifest) int {
	n := 0
	for _, m := range manifests {
		n += len(m.Tests)
	}
	return n
}
