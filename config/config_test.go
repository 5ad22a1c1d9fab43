package config

import (
	"os"
	"path"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.DriverBinary != "gcsfuse" {
		t.Fatalf("got driver %q", cfg.DriverBinary)
	}
	if cfg.MountArgs != "--implicit-dirs" {
		t.Fatalf("got mount args %q", cfg.MountArgs)
	}
	if cfg.SampleInterval() != 2*time.Second {
		t.Fatalf("got sample interval %s", cfg.SampleInterval())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := path.Join(dir, "config.yml")
	err := os.WriteFile(p, []byte(`
driver_binary: s3fs
mount_args: "-o allow_other"
sample_interval_ms: 500
continue_on_failure: true
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DriverBinary != "s3fs" {
		t.Fatalf("got driver %q", cfg.DriverBinary)
	}
	if cfg.MountArgs != "-o allow_other" {
		t.Fatalf("got mount args %q", cfg.MountArgs)
	}
	if cfg.SampleIntervalMs != 500 {
		t.Fatalf("got sample interval %d", cfg.SampleIntervalMs)
	}
	if !cfg.ContinueOnFailure {
		t.Fatal("continue_on_failure not set")
	}
	// Unset fields keep their defaults.
	if cfg.FioBinary != "fio" {
		t.Fatalf("got fio binary %q", cfg.FioBinary)
	}

	t.Run("invalid values", func(t *testing.T) {
		p := path.Join(dir, "bad.yml")
		err := os.WriteFile(p, []byte("sample_interval_ms: -1\n"), 0o644)
		if err != nil {
			t.Fatal(err)
		}
		_, err = Load(p)
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestFromDocument(t *testing.T) {
	// Numbers decoded from JSON arrive as float64.
	cfg, err := FromDocument(map[string]any{
		"driver_binary":      "gcsfuse",
		"sample_interval_ms": float64(1000),
		"mount_timeout_sec":  float64(60),
		"unknown_field":      "ignored",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SampleIntervalMs != 1000 {
		t.Fatalf("got sample interval %d", cfg.SampleIntervalMs)
	}
	if cfg.MountTimeout() != 60*time.Second {
		t.Fatalf("got mount timeout %s", cfg.MountTimeout())
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	orig := Default()
	orig.DriverRevision = "v2.5.1"
	orig.ContinueOnFailure = true

	cfg, err := FromDocument(orig.Document())
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *orig {
		t.Fatalf("got %+v, want %+v", cfg, orig)
	}
}
