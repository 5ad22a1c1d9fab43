package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/config"
	"github.com/fusebench/FuseBench/fiobench"
	"github.com/fusebench/FuseBench/jobspec"
	"github.com/fusebench/FuseBench/manifest"
	"github.com/fusebench/FuseBench/mount"
	"github.com/fusebench/FuseBench/worker"
)

func main() {
	benchmarkID := flag.String("benchmark-id", "", "The benchmark run to execute this node's share of. Required.")
	node := flag.String("node", "", "This node's name, as assigned by the coordinator. Defaults to the hostname.")
	artifactsBucket := flag.String("artifacts-bucket", "", "The bucket holding jobs, configs, and results. Required.")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint for the artifacts bucket. Uses the SDK default when empty.")
	workDir := flag.String("work-dir", "/tmp/fusebench", "Local directory for the mount point, fio outputs, and the worker log.")
	configPath := flag.String("config", "", "Local YAML run config. Overrides the run's shared config document.")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if *benchmarkID == "" || *artifactsBucket == "" {
		fmt.Fprintln(os.Stderr, "benchmark-id and artifacts-bucket are required flags")
		os.Exit(worker.ExitConfig)
	}
	if *node == "" {
		hostname, err := os.Hostname()
		if err != nil {
			fmt.Fprintln(os.Stderr, "node not given and hostname unavailable:", err)
			os.Exit(worker.ExitConfig)
		}
		*node = hostname
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, *benchmarkID, *node, *artifactsBucket, *endpoint, *workDir, *configPath))
}

// run returns the process exit code. The failure finalizer guarantees that
// any non-zero exit leaves a failed manifest behind with the same code.
func run(ctx context.Context, benchmarkID, node, artifactsBucket, endpoint, workDir, configPath string) int {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("loading AWS config failed", slog.String("error", err.Error()))
		return worker.ExitConfig
	}
	store := artifactstore.NewS3Store(&artifactstore.S3StoreInput{
		AwsConfig: awsCfg,
		Bucket:    artifactsBucket,
		Endpoint:  endpoint,
	})

	logPath := path.Join(workDir, fmt.Sprintf("worker-%s.log", benchmarkID))
	tracker := manifest.NewTracker(store, benchmarkID, node)
	finalizer := manifest.NewFailureFinalizer(tracker, store, benchmarkID, node, logPath)

	err = worker.RunProtected(func() error {
		return runBenchmark(ctx, store, tracker, benchmarkID, node, workDir, configPath)
	})
	if err != nil {
		code := worker.ExitCode(err)
		slog.Error("worker failed", slog.String("error", err.Error()), slog.Int("exitCode", code))
		finalizer.Run(code)
		return code
	}
	slog.Info("worker completed", slog.String("benchmarkID", benchmarkID), slog.String("node", node))
	return worker.ExitOK
}

func runBenchmark(ctx context.Context, store artifactstore.Store, tracker *manifest.Tracker, benchmarkID, node, workDir, configPath string) error {
	job, err := jobspec.LoadJob(ctx, store, benchmarkID, node)
	if err != nil {
		return err
	}

	matrix, err := jobspec.LoadMatrixFromStore(ctx, store, benchmarkID)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, store, benchmarkID, configPath)
	if err != nil {
		return err
	}

	jobfilePath := path.Join(workDir, "jobfile.fio")
	err = downloadJobfile(ctx, store, benchmarkID, jobfilePath)
	if err != nil {
		return err
	}

	// A stale fio must fail before anything mounts.
	err = fiobench.CheckVersion(ctx, cfg.FioBinary, cfg.FioMinVersion)
	if err != nil {
		return err
	}

	err = tracker.Init(ctx)
	if err != nil {
		return err
	}

	orch := worker.New(&worker.Input{
		Job:     job,
		Matrix:  matrix,
		Config:  cfg,
		Store:   store,
		Tracker: tracker,
		Mounter: mount.NewSession(&mount.SessionInput{
			DriverBinary: cfg.DriverBinary,
			MountArgs:    cfg.MountArgs,
			Timeout:      cfg.MountTimeout(),
		}),
		Runner:      fiobench.NewRunner(cfg.FioBinary),
		MountPath:   path.Join(workDir, "mnt"),
		ScratchDir:  path.Join(workDir, "output"),
		JobfilePath: jobfilePath,
	})
	return orch.Run(ctx)
}

// loadConfig prefers a local file; otherwise it decodes the run's shared
// config document.
func loadConfig(ctx context.Context, store artifactstore.Store, benchmarkID, configPath string) (*config.RunConfig, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	buf, err := store.Download(ctx, artifactstore.ConfigKey(benchmarkID))
	if err != nil {
		return nil, fmt.Errorf("loading run config failed: %w", err)
	}
	doc := map[string]any{}
	err = json.Unmarshal(buf, &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing run config failed: %w", err)
	}
	return config.FromDocument(doc)
}

func downloadJobfile(ctx context.Context, store artifactstore.Store, benchmarkID, jobfilePath string) error {
	buf, err := store.Download(ctx, artifactstore.JobfileKey(benchmarkID))
	if err != nil {
		return fmt.Errorf("loading jobfile failed: %w", err)
	}
	err = os.MkdirAll(path.Dir(jobfilePath), 0o755)
	if err != nil {
		return err
	}
	return os.WriteFile(jobfilePath, buf, 0o644)
}
