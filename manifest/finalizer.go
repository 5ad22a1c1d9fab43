package manifest

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

// A FailureFinalizer is the single funnel for abnormal termination: it
// best-effort uploads the worker log and writes the failed manifest exactly
// once, whatever path invoked it. Register it once at worker start and call
// Run from every exit path with a non-zero code.
type FailureFinalizer struct {
	tracker *Tracker
	store   artifactstore.Store
	logKey  string
	logPath string
	once    sync.Once
}

func NewFailureFinalizer(tracker *Tracker, store artifactstore.Store, benchmarkID, node, logPath string) *FailureFinalizer {
	return &FailureFinalizer{
		tracker: tracker,
		store:   store,
		logKey:  artifactstore.WorkerLogKey(benchmarkID, node),
		logPath: logPath,
	}
}

// Run finalizes the manifest as failed with the given exit code. Publish
// errors are swallowed after one attempt; this path must never block exit
// for long or fail louder than the error that got us here.
func (f *FailureFinalizer) Run(exitCode int) {
	f.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		f.uploadLog(ctx)

		err := f.tracker.FinalizeFailed(ctx, exitCode)
		if err != nil {
			slog.Error("failed to finalize manifest", slog.String("error", err.Error()))
		} else {
			slog.Info("finalized manifest as failed", slog.Int("errorCode", exitCode))
		}
	})
}

func (f *FailureFinalizer) uploadLog(ctx context.Context) {
	if f.logPath == "" {
		return
	}
	buf, err := os.ReadFile(f.logPath)
	if err != nil {
		slog.Warn("could not read worker log for upload", slog.String("error", err.Error()))
		return
	}
	err = f.store.Upload(ctx, f.logKey, bytes.NewReader(buf))
	if err != nil {
		slog.Warn("could not upload worker log", slog.String("error", err.Error()))
	}
}
