package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// RunConfig controls how a worker drives the filesystem driver and fio.
// The coordinator publishes it as the run's shared config document; workers
// can also load it from a local YAML file.
type RunConfig struct {
	// DriverBinary is the FUSE driver executable used to mount the bucket.
	DriverBinary string `yaml:"driver_binary" mapstructure:"driver_binary"`
	// DriverRevision is the source revision the driver was built from. Only
	// recorded alongside results; the build itself happens outside this tool.
	DriverRevision string `yaml:"driver_revision" mapstructure:"driver_revision"`
	// MountArgs are extra flags passed to the driver before bucket and
	// mount point, as a single space-separated string.
	MountArgs string `yaml:"mount_args" mapstructure:"mount_args"`

	FioBinary     string `yaml:"fio_binary" mapstructure:"fio_binary"`
	FioMinVersion string `yaml:"fio_min_version" mapstructure:"fio_min_version"`

	// SampleIntervalMs is the telemetry sampling cadence. CPU percent needs a
	// tick delta, so a benchmark shorter than two intervals yields an empty
	// series and zeroed usage.
	SampleIntervalMs int `yaml:"sample_interval_ms" mapstructure:"sample_interval_ms"`
	MountTimeoutSec  int `yaml:"mount_timeout_sec" mapstructure:"mount_timeout_sec"`
	// SettleDelaySec is the pause between iterations that lets the driver
	// process exit fully before the next mount.
	SettleDelaySec int `yaml:"settle_delay_sec" mapstructure:"settle_delay_sec"`

	// ContinueOnFailure marks a failing test case failed in the manifest and
	// moves on instead of aborting the whole worker.
	ContinueOnFailure bool `yaml:"continue_on_failure" mapstructure:"continue_on_failure"`
}

func Default() *RunConfig {
	return &RunConfig{
		DriverBinary:     "gcsfuse",
		DriverRevision:   "master",
		MountArgs:        "--implicit-dirs",
		FioBinary:        "fio",
		FioMinVersion:    "3.16",
		SampleIntervalMs: 2000,
		MountTimeoutSec:  30,
		SettleDelaySec:   5,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*RunConfig, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s failed: %w", path, err)
	}
	err = yaml.Unmarshal(buf, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s failed: %w", path, err)
	}
	return cfg, cfg.validate()
}

// FromDocument decodes the run's shared config document (already parsed
// JSON) over the defaults. Unknown fields are ignored so old workers keep
// working when the document grows.
func FromDocument(doc map[string]any) (*RunConfig, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	err = dec.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("can't convert config document to RunConfig: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *RunConfig) validate() error {
	if c.DriverBinary == "" {
		return fmt.Errorf("driver_binary must not be empty")
	}
	if c.SampleIntervalMs <= 0 {
		return fmt.Errorf("sample_interval_ms must be positive")
	}
	if c.MountTimeoutSec <= 0 {
		return fmt.Errorf("mount_timeout_sec must be positive")
	}
	return nil
}

func (c *RunConfig) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMs) * time.Millisecond
}

func (c *RunConfig) MountTimeout() time.Duration {
	return time.Duration(c.MountTimeoutSec) * time.Second
}

func (c *RunConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySec) * time.Second
}

// Document renders the config as the shared run document the coordinator
// publishes.
func (c *RunConfig) Document() map[string]any {
	return map[string]any{
		"driver_binary":       c.DriverBinary,
		"driver_revision":     c.DriverRevision,
		"mount_args":          c.MountArgs,
		"fio_binary":          c.FioBinary,
		"fio_min_version":     c.FioMinVersion,
		"sample_interval_ms":  c.SampleIntervalMs,
		"mount_timeout_sec":   c.MountTimeoutSec,
		"settle_delay_sec":    c.SettleDelaySec,
		"continue_on_failure": c.ContinueOnFailure,
	}
}
