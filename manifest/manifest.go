package manifest

import (
	"time"

	"github.com/fusebench/FuseBench/jobspec"
	resourcemonitor "github.com/fusebench/FuseBench/resource_monitor"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	TestSuccess = "success"
	TestFailed  = "failed"
)

// A TestResult records one test case that reached a terminal outcome.
type TestResult struct {
	TestID uint                            `json:"test_id"`
	Status string                          `json:"status"`
	Params jobspec.TestCaseParams          `json:"params"`
	Usage  resourcemonitor.AggregatedUsage `json:"usage"`
}

// A Manifest is the persisted status document for one node's run. It is the
// single source of truth the coordinator polls.
type Manifest struct {
	Node       string       `json:"node"`
	Status     Status       `json:"status"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	ErrorCode  int          `json:"error_code,omitempty"`
	TotalTests int          `json:"total_tests,omitempty"`
	Tests      []TestResult `json:"tests"`
}
