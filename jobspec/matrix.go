package jobspec

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

// ErrNotFound is returned by Resolve for a test id with no matrix row.
var ErrNotFound = errors.New("test id not found in matrix")

// TestCaseParams is one row of the test matrix: the fio parameter
// combination identified by a test id.
type TestCaseParams struct {
	TestID      uint   `json:"test_id"`
	BlockSize   string `json:"block_size"`
	ObjectSize  string `json:"object_size"`
	IODepth     int    `json:"io_depth"`
	IOPattern   string `json:"io_pattern"`
	ThreadCount int    `json:"thread_count"`
	FileCount   int    `json:"file_count"`
}

// A TestMatrix is the read-only table of test cases for a run. Rows are
// numbered from 1 in CSV order, matching the ids the coordinator hands out.
type TestMatrix struct {
	rows map[uint]TestCaseParams
	ids  []uint
}

var matrixHeader = []string{"bs", "file_size", "iodepth", "iotype", "threads", "nrfiles"}

// LoadMatrix parses the test-cases CSV. Malformed rows fail the whole load;
// a bad matrix must never produce silently wrong fio parameters.
func LoadMatrix(r io.Reader) (*TestMatrix, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading matrix header failed: %w", err)
	}
	if len(header) != len(matrixHeader) {
		return nil, fmt.Errorf("matrix header has %d columns, want %d", len(header), len(matrixHeader))
	}
	for i, name := range matrixHeader {
		if header[i] != name {
			return nil, fmt.Errorf("matrix column %d is %q, want %q", i, header[i], name)
		}
	}

	m := &TestMatrix{rows: map[uint]TestCaseParams{}}
	id := uint(0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading matrix row failed: %w", err)
		}
		id++
		params, err := parseRow(id, rec)
		if err != nil {
			return nil, err
		}
		m.rows[id] = params
		m.ids = append(m.ids, id)
	}
	if len(m.rows) == 0 {
		return nil, fmt.Errorf("matrix has no test cases")
	}
	return m, nil
}

func parseRow(id uint, rec []string) (TestCaseParams, error) {
	ioDepth, err := strconv.Atoi(rec[2])
	if err != nil {
		return TestCaseParams{}, fmt.Errorf("matrix row %d: bad iodepth %q: %w", id, rec[2], err)
	}
	threads, err := strconv.Atoi(rec[4])
	if err != nil {
		return TestCaseParams{}, fmt.Errorf("matrix row %d: bad threads %q: %w", id, rec[4], err)
	}
	nrFiles, err := strconv.Atoi(rec[5])
	if err != nil {
		return TestCaseParams{}, fmt.Errorf("matrix row %d: bad nrfiles %q: %w", id, rec[5], err)
	}
	if rec[0] == "" || rec[1] == "" || rec[3] == "" {
		return TestCaseParams{}, fmt.Errorf("matrix row %d has empty columns", id)
	}
	return TestCaseParams{
		TestID:      id,
		BlockSize:   rec[0],
		ObjectSize:  rec[1],
		IODepth:     ioDepth,
		IOPattern:   rec[3],
		ThreadCount: threads,
		FileCount:   nrFiles,
	}, nil
}

// LoadMatrixFromStore fetches the run's shared test-cases CSV.
func LoadMatrixFromStore(ctx context.Context, store artifactstore.Store, benchmarkID string) (*TestMatrix, error) {
	buf, err := store.Download(ctx, artifactstore.TestCasesKey(benchmarkID))
	if err != nil {
		return nil, fmt.Errorf("loading test matrix failed: %w", err)
	}
	return LoadMatrix(bytes.NewReader(buf))
}

// Resolve returns the params for a test id.
func (m *TestMatrix) Resolve(testID uint) (TestCaseParams, error) {
	params, ok := m.rows[testID]
	if !ok {
		return TestCaseParams{}, fmt.Errorf("test id %d: %w", testID, ErrNotFound)
	}
	return params, nil
}

// IDs returns all test ids in matrix order.
func (m *TestMatrix) IDs() []uint {
	out := make([]uint, len(m.ids))
	copy(out, m.ids)
	return out
}

// Len returns the number of test cases.
func (m *TestMatrix) Len() int {
	return len(m.rows)
}
