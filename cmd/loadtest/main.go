// Command loadtest drives a standalone engine instance (identity,
// blockstore, placement over a placement.LoopbackRouter, manifest,
// fileengine) through sustained Write and Read traffic and reports
// throughput and latency percentiles, optionally checking the result
// against a recorded baseline. Adapted from the teacher's own load-test
// runner: same worker-count/QPS/duration/baseline/regression-threshold
// shape, but driving fileengine.Engine.Write/Read directly in-process
// instead of issuing HTTP range/multipart requests against a running
// gateway — there is no server process or backend to start and stop here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/fileengine"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/manifest"
	"github.com/dreamware/msscs/internal/placement"
	"github.com/dreamware/msscs/test"
)

func main() {
	var (
		testType       = flag.String("test-type", "both", "Test type: write, read, or both")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration per phase")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 25, "Operations per second per worker")
		objectSize     = flag.Int64("object-size", 4*1024*1024, "Object size in bytes (4MB default)")
		chunkSize      = flag.Int("chunk-size", 64*1024, "Pipeline chunk size in bytes")
		erasureK       = flag.Int("erasure-k", 10, "Erasure code data shards")
		erasureM       = flag.Int("erasure-m", 4, "Erasure code parity shards")
		shareThreshold = flag.Int("share-threshold", 3, "Shamir share reconstruction threshold")
		shareTotal     = flag.Int("share-total", 5, "Shamir share total count")
		baselineDir    = flag.String("baseline-dir", "testdata/baselines", "Directory for baseline files")
		threshold      = flag.Float64("threshold", 10.0, "Regression threshold percentage")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		updateBaseline = flag.Bool("update-baseline", false, "Record a new baseline instead of checking regression")
		dataDir        = flag.String("data-dir", "", "Data directory for the load-test identity (defaults to a temp dir)")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if err := os.MkdirAll(*baselineDir, 0o755); err != nil {
		log.Fatalf("failed to create baseline directory: %v", err)
	}

	dir := *dataDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "loadtest-*")
		if err != nil {
			log.Fatalf("failed to create temp data dir: %v", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	eng, err := buildEngine(dir, config.PipelineConfig{
		ChunkSize:          *chunkSize,
		ErasureK:           *erasureK,
		ErasureM:           *erasureM,
		ShareThreshold:     *shareThreshold,
		ShareTotal:         *shareTotal,
		CompressionEnabled: true,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	fmt.Println("=== Storage Engine Load Test Runner ===")
	fmt.Printf("Test Type: %s\n", *testType)
	fmt.Printf("Duration per phase: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Object Size: %d bytes\n", *objectSize)
	fmt.Printf("Erasure (K,M): (%d,%d)  Shares (T,N): (%d,%d)\n", *erasureK, *erasureM, *shareThreshold, *shareTotal)
	fmt.Printf("Regression Threshold: %.1f%%\n", *threshold)
	fmt.Println()

	cfg := test.LoadTestConfig{
		NumWorkers:          *workers,
		Duration:            *duration,
		QPS:                 *qps,
		ObjectSize:          *objectSize,
		RegressionThreshold: *threshold,
	}

	exitCode := 0
	startTime := time.Now()
	ctx := context.Background()

	if *testType == "write" || *testType == "both" {
		fmt.Println("--- Running Write Load Test ---")
		cfg.BaselineFile = filepath.Join(*baselineDir, "write_load_test_baseline.json")
		if err := runPhase(ctx, cfg, eng, *updateBaseline, logger, test.RunWriteLoadTest); err != nil {
			log.Printf("write load test failed: %v", err)
			exitCode = 1
		}
		fmt.Println()
	}

	if *testType == "read" || *testType == "both" {
		fmt.Println("--- Running Read Load Test ---")
		cfg.BaselineFile = filepath.Join(*baselineDir, "read_load_test_baseline.json")
		if err := runPhase(ctx, cfg, eng, *updateBaseline, logger, test.RunReadLoadTest); err != nil {
			log.Printf("read load test failed: %v", err)
			exitCode = 1
		}
		fmt.Println()
	}

	fmt.Printf("=== Load Tests Complete (Total Time: %v) ===\n", time.Since(startTime))
	if exitCode != 0 {
		fmt.Println("Some tests failed or regressions detected")
		os.Exit(exitCode)
	}
	fmt.Println("All tests passed")
}

type loadTestFunc func(ctx context.Context, cfg test.LoadTestConfig, eng *fileengine.Engine, logger *logrus.Logger) (*test.LoadTestResult, error)

func runPhase(ctx context.Context, cfg test.LoadTestConfig, eng *fileengine.Engine, updateBaseline bool, logger *logrus.Logger, run loadTestFunc) error {
	result, err := run(ctx, cfg, eng, logger)
	if err != nil {
		return fmt.Errorf("load test failed: %w", err)
	}
	test.PrintLoadTestResult(result)

	if updateBaseline {
		if err := test.WriteBaseline(result, cfg.BaselineFile); err != nil {
			return fmt.Errorf("write baseline: %w", err)
		}
		fmt.Println("Baseline updated")
		return nil
	}

	regression, err := test.AnalyzeRegression(result, cfg.BaselineFile, cfg.RegressionThreshold)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No baseline found - run with --update-baseline to create one")
			return nil
		}
		return fmt.Errorf("regression analysis failed: %w", err)
	}
	test.PrintRegressionResult(regression)
	if regression.SignificantRegression {
		return fmt.Errorf("significant regression detected")
	}
	fmt.Println("Load test passed")
	return nil
}

// buildEngine wires a fresh identity and a standalone fileengine.Engine
// under dataDir, the same components cmd/vault assembles per invocation,
// with a fixed passphrase since this identity only lives for the duration
// of the load test process.
func buildEngine(dataDir string, pipeline config.PipelineConfig, logger *logrus.Logger) (*fileengine.Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	_, unlocked, err := identity.Create("loadtest-passphrase")
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	store := blockstore.New(512 << 20)
	man := manifest.New(filepath.Join(dataDir, "manifest.json"))

	placementCfg := config.Default().Placement
	reliability := placement.NewReliability("")
	place := placement.New(placement.LoopbackRouter{}, store, reliability, nil, placementCfg)

	return fileengine.New(unlocked, store, place, man, filepath.Join(dataDir, "descriptors.json"), pipeline, logger)
}
