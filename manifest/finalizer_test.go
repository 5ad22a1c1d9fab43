package manifest

import (
	"os"
	"path"
	"testing"

	artifactstore "github.com/fusebench/FuseBench/artifact_store"
)

func TestFailureFinalizer(t *testing.T) {
	t.Run("uploads the log and finalizes", func(t *testing.T) {
		store := artifactstore.NewMemStore()
		tr := NewTracker(store, "bench1", "node-0")

		logPath := path.Join(t.TempDir(), "worker.log")
		err := os.WriteFile(logPath, []byte("boom\n"), 0o644)
		if err != nil {
			t.Fatal(err)
		}

		f := NewFailureFinalizer(tr, store, "bench1", "node-0", logPath)
		f.Run(4)

		m := persisted(t, store, "bench1", "node-0")
		if m.Status != StatusFailed {
			t.Fatalf("got status %q, want failed", m.Status)
		}
		if m.ErrorCode != 4 {
			t.Fatalf("got error code %d", m.ErrorCode)
		}
		if !store.Has(artifactstore.WorkerLogKey("bench1", "node-0")) {
			t.Fatal("worker log not uploaded")
		}
	})

	t.Run("runs at most once", func(t *testing.T) {
		store := artifactstore.NewMemStore()
		tr := NewTracker(store, "bench1", "node-0")
		f := NewFailureFinalizer(tr, store, "bench1", "node-0", "")

		f.Run(3)
		f.Run(1)

		m := persisted(t, store, "bench1", "node-0")
		if m.ErrorCode != 3 {
			t.Fatalf("got error code %d, want the first one", m.ErrorCode)
		}
	})

	t.Run("missing log is not fatal", func(t *testing.T) {
		store := artifactstore.NewMemStore()
		tr := NewTracker(store, "bench1", "node-0")
		f := NewFailureFinalizer(tr, store, "bench1", "node-0", "/does/not/exist.log")

		f.Run(1)
		m := persisted(t, store, "bench1", "node-0")
		if m.Status != StatusFailed {
			t.Fatalf("got status %q, want failed", m.Status)
		}
	})
}
