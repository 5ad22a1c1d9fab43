package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

// A Tracker owns the canonical copy of one node's manifest: every mutation
// is applied locally and then published. Never run two trackers against the
// same manifest key.
type Tracker struct {
	store artifactstore.Store
	key   string
	node  string

	mu        sync.Mutex
	manifest  *Manifest
	finalized bool
}

func NewTracker(store artifactstore.Store, benchmarkID, node string) *Tracker {
	return &Tracker{
		store: store,
		key:   artifactstore.ManifestKey(benchmarkID, node),
		node:  node,
	}
}

// Init creates and persists the initial running manifest. Must complete
// before any test executes.
func (t *Tracker) Init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manifest != nil {
		return fmt.Errorf("manifest already initialized")
	}
	t.manifest = &Manifest{
		Node:      t.node,
		Status:    StatusRunning,
		StartTime: time.Now().UTC(),
		Tests:     []TestResult{},
	}
	return t.publish(ctx)
}

// AppendResult records one terminal per-test outcome, in execution order.
func (t *Tracker) AppendResult(ctx context.Context, result TestResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manifest == nil {
		return fmt.Errorf("manifest not initialized")
	}
	if t.finalized {
		return fmt.Errorf("manifest already finalized")
	}
	t.manifest.Tests = append(t.manifest.Tests, result)
	return t.publish(ctx)
}

// FinalizeCompleted sets the terminal completed state and publishes it.
// A publish failure here is the caller's problem: a completed run whose
// manifest cannot be published must surface as an error.
func (t *Tracker) FinalizeCompleted(ctx context.Context, totalTests int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return nil
	}
	if t.manifest == nil {
		return fmt.Errorf("manifest not initialized")
	}
	t.finalized = true
	now := time.Now().UTC()
	t.manifest.Status = StatusCompleted
	t.manifest.EndTime = &now
	t.manifest.TotalTests = totalTests
	return t.publish(ctx)
}

// FinalizeFailed sets the terminal failed state with the process exit code.
// It is a no-op when a terminal state was already written, so the failure
// path can always call it unconditionally. When the in-memory manifest was
// never constructed it falls back to the last-persisted document.
func (t *Tracker) FinalizeFailed(ctx context.Context, errorCode int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return nil
	}
	t.finalized = true

	if t.manifest == nil {
		m := &Manifest{}
		err := artifactstore.DownloadJSON(ctx, t.store, t.key, m)
		if err != nil {
			slog.Warn("no persisted manifest to finalize, writing a fresh one", slog.String("error", err.Error()))
			m = &Manifest{Node: t.node, StartTime: time.Now().UTC(), Tests: []TestResult{}}
		}
		t.manifest = m
	}
	now := time.Now().UTC()
	t.manifest.Status = StatusFailed
	t.manifest.EndTime = &now
	t.manifest.ErrorCode = errorCode
	return t.publish(ctx)
}

// Finalized reports whether a terminal write has been attempted.
func (t *Tracker) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

// Snapshot returns a copy of the current manifest, or nil before Init.
func (t *Tracker) Snapshot() *Manifest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manifest == nil {
		return nil
	}
	m := *t.manifest
	m.Tests = append([]TestResult{}, t.manifest.Tests...)
	return &m
}

// publish uploads the manifest. Callers hold t.mu.
func (t *Tracker) publish(ctx context.Context) error {
	err := artifactstore.UploadJSON(ctx, t.store, t.key, t.manifest)
	if err != nil {
		return fmt.Errorf("publishing manifest failed: %w", err)
	}
	return nil
}
