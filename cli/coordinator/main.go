package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	artifactstore "github.com/fusebench/FuseBench/artifact_store"
	"github.com/fusebench/FuseBench/config"
	"github.com/fusebench/FuseBench/coordinator"
	"github.com/fusebench/FuseBench/manifest"
	"github.com/fusebench/FuseBench/target"
	"golang.org/x/crypto/ssh"
)

type nodeFlags []string

func (nfs *nodeFlags) String() string {
	return strings.Join(*nfs, ",")
}

func (nfs *nodeFlags) Set(value string) error {
	*nfs = append(*nfs, value)
	return nil
}

func main() {
	nodes := nodeFlags{}
	flag.Var(&nodes, "node", "A benchmark node as host[:port]. Can be used multiple times; at least one is required.")
	sshUser := flag.String("ssh-user", "root", "The SSH user on the benchmark nodes.")
	sshKeyPath := flag.String("ssh-key", "", "Path to the SSH private key for the benchmark nodes. Required.")
	testCasesPath := flag.String("test-cases", "test-cases.csv", "Path to the test matrix CSV.")
	jobfilePath := flag.String("jobfile", "jobfile.fio", "Path to the fio job file template.")
	dataBucket := flag.String("data-bucket", "", "The bucket the workers mount and benchmark. Required.")
	artifactsBucket := flag.String("artifacts-bucket", "", "The bucket holding jobs, configs, and results. Required.")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint for the artifacts bucket. Uses the SDK default when empty.")
	iterations := flag.Uint("iterations", 3, "How many times each test case runs.")
	workerBinary := flag.String("worker-binary", "/usr/local/bin/fusebench-worker", "Path of the worker binary on each node.")
	remoteWorkDir := flag.String("remote-work-dir", "/tmp/fusebench", "Worker scratch directory on each node.")
	configPath := flag.String("config", "", "YAML run config. Defaults are used when empty.")
	waitTimeoutMin := flag.Int("wait-timeout-min", 0, "Give up waiting for nodes after this many minutes. Unlimited by default.")
	reportPath := flag.String("report", "report.txt", "Where to write the summary report.")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if len(nodes) == 0 {
		panic(fmt.Errorf("node is a required flag"))
	}
	if *sshKeyPath == "" {
		panic(fmt.Errorf("ssh-key is a required flag"))
	}
	if *dataBucket == "" || *artifactsBucket == "" {
		panic(fmt.Errorf("data-bucket and artifacts-bucket are required flags"))
	}

	keyData, err := os.ReadFile(*sshKeyPath)
	if err != nil {
		panic(err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		panic(err)
	}

	targets := make([]target.Target, len(nodes))
	for i, spec := range nodes {
		t, err := parseNode(spec, *sshUser, signer)
		if err != nil {
			panic(err)
		}
		targets[i] = t
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			panic(err)
		}
	}

	matrixCSV, err := os.ReadFile(*testCasesPath)
	if err != nil {
		panic(err)
	}
	jobfile, err := os.ReadFile(*jobfilePath)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		panic(err)
	}
	store := artifactstore.NewS3Store(&artifactstore.S3StoreInput{
		AwsConfig: awsCfg,
		Bucket:    *artifactsBucket,
		Endpoint:  *endpoint,
	})

	coord := coordinator.New(&coordinator.Input{
		Store:           store,
		Targets:         targets,
		Config:          cfg,
		DataBucket:      *dataBucket,
		ArtifactsBucket: *artifactsBucket,
		Endpoint:        *endpoint,
		Iterations:      *iterations,
		WorkerBinary:    *workerBinary,
		RemoteWorkDir:   *remoteWorkDir,
		WaitTimeout:     time.Duration(*waitTimeoutMin) * time.Minute,
	})

	rep, err := coord.Run(ctx, matrixCSV, jobfile)
	if err != nil {
		panic(err)
	}

	summary := rep.Summary()
	fmt.Print(summary)
	err = os.WriteFile(*reportPath, []byte(summary), 0o644)
	if err != nil {
		panic(err)
	}
	slog.Info("report written", slog.String("path", *reportPath), slog.String("benchmarkID", coord.BenchmarkID()))

	for _, m := range rep.Manifests {
		if m.Status == manifest.StatusFailed {
			slog.Error("node failed", slog.String("node", m.Node), slog.Int("errorCode", m.ErrorCode))
			os.Exit(1)
		}
	}
}

func parseNode(spec, user string, signer ssh.Signer) (*target.SSHTarget, error) {
	host := spec
	port := 22
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		host = spec[:i]
		p, err := strconv.Atoi(spec[i+1:])
		if err != nil {
			return nil, fmt.Errorf("bad node %q: %w", spec, err)
		}
		port = p
	}
	return &target.SSHTarget{
		NodeName: host,
		User:     user,
		Host:     host,
		SSHPort:  port,
		Auths:    []ssh.AuthMethod{ssh.PublicKeys(signer)},
	}, nil
}
