package artifactstore

import "fmt"

// Key layout under the artifacts bucket. The coordinator writes the shared
// inputs and per-node jobs; each worker writes only under its own results
// prefix, so concurrent nodes never collide.

func TestCasesKey(benchmarkID string) string {
	return fmt.Sprintf("%s/test-cases.csv", benchmarkID)
}

func JobfileKey(benchmarkID string) string {
	return fmt.Sprintf("%s/jobfile.fio", benchmarkID)
}

func ConfigKey(benchmarkID string) string {
	return fmt.Sprintf("%s/config.json", benchmarkID)
}

func JobKey(benchmarkID, node string) string {
	return fmt.Sprintf("%s/jobs/%s.json", benchmarkID, node)
}

func ResultsPrefix(benchmarkID, node string) string {
	return fmt.Sprintf("%s/results/%s", benchmarkID, node)
}

func ManifestKey(benchmarkID, node string) string {
	return fmt.Sprintf("%s/results/%s/manifest.json", benchmarkID, node)
}

func FioOutputKey(benchmarkID, node string, testID uint, iteration int) string {
	return fmt.Sprintf("%s/results/%s/test-%d/fio_output_%d.json", benchmarkID, node, testID, iteration)
}

func ResourceUsageKey(benchmarkID, node string, testID uint) string {
	return fmt.Sprintf("%s/results/%s/test-%d/resource_usage.csv", benchmarkID, node, testID)
}

func WorkerLogKey(benchmarkID, node string) string {
	return fmt.Sprintf("%s/results/%s/worker.log", benchmarkID, node)
}
