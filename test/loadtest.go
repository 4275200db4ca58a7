// Load test harness for the file engine's Write/Read path, replacing the
// original gateway HTTP load generator (range GET / multipart PUT against a
// running S3 gateway) with direct in-process calls against a
// fileengine.Engine: there is no HTTP surface or backend process to manage
// once Write and Read are ordinary Go calls. Grounded on the teacher's own
// load-test shape (NumWorkers goroutines firing at a fixed QPS for a fixed
// Duration, a JSON baseline file, and a percentage regression threshold).
package test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/msscs/internal/fileengine"
)

// LoadTestConfig parameterizes one load run against an already-wired
// fileengine.Engine.
type LoadTestConfig struct {
	NumWorkers           int
	Duration             time.Duration
	QPS                  int // per worker
	ObjectSize           int64
	BaselineFile         string
	RegressionThreshold  float64 // percent
}

// LoadTestResult summarizes one run's throughput and latency distribution.
type LoadTestResult struct {
	Operation        string        `json:"operation"`
	TotalOps         int64         `json:"total_ops"`
	TotalErrors      int64         `json:"total_errors"`
	Duration         time.Duration `json:"duration"`
	BytesTransferred int64         `json:"bytes_transferred"`
	ThroughputMBps   float64       `json:"throughput_mbps"`
	OpsPerSecond     float64       `json:"ops_per_second"`
	LatencyP50Ms     float64       `json:"latency_p50_ms"`
	LatencyP95Ms     float64       `json:"latency_p95_ms"`
	LatencyP99Ms     float64       `json:"latency_p99_ms"`
}

// RunWriteLoadTest drives cfg.NumWorkers goroutines, each writing
// cfg.ObjectSize random bytes under a fresh path at up to cfg.QPS
// operations/second, for cfg.Duration.
func RunWriteLoadTest(ctx context.Context, cfg LoadTestConfig, eng *fileengine.Engine, logger *logrus.Logger) (*LoadTestResult, error) {
	var written int64
	var errs int64
	var bytes int64
	var latencies []time.Duration
	var mu sync.Mutex

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < cfg.NumWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			interval := time.Second / time.Duration(maxInt(cfg.QPS, 1))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			payload := randomPayload(cfg.ObjectSize, int64(worker))
			seq := 0
			for time.Now().Before(deadline) {
				<-ticker.C
				path := fmt.Sprintf("/loadtest/write/w%d/%d", worker, seq)
				seq++

				start := time.Now()
				err := eng.Write(ctx, path, payload, nil)
				elapsed := time.Since(start)

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()

				if err != nil {
					logger.WithError(err).WithField("path", path).Debug("loadtest write failed")
					atomic.AddInt64(&errs, 1)
					continue
				}
				atomic.AddInt64(&written, 1)
				atomic.AddInt64(&bytes, int64(len(payload)))
			}
		}(w)
	}
	wg.Wait()

	return buildResult("write", written, errs, cfg.Duration, bytes, latencies), nil
}

// RunReadLoadTest first writes cfg.NumWorkers seed objects, then spends
// cfg.Duration reading them back repeatedly at up to cfg.QPS
// operations/second per worker.
func RunReadLoadTest(ctx context.Context, cfg LoadTestConfig, eng *fileengine.Engine, logger *logrus.Logger) (*LoadTestResult, error) {
	paths := make([]string, cfg.NumWorkers)
	for w := 0; w < cfg.NumWorkers; w++ {
		path := fmt.Sprintf("/loadtest/read/seed%d", w)
		if err := eng.Write(ctx, path, randomPayload(cfg.ObjectSize, int64(w)), nil); err != nil {
			return nil, fmt.Errorf("loadtest: seed write for read test: %w", err)
		}
		paths[w] = path
	}

	var read int64
	var errs int64
	var bytes int64
	var latencies []time.Duration
	var mu sync.Mutex

	deadline := time.Now().Add(cfg.Duration)
	var wg sync.WaitGroup
	for w := 0; w < cfg.NumWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			interval := time.Second / time.Duration(maxInt(cfg.QPS, 1))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			path := paths[worker]
			for time.Now().Before(deadline) {
				<-ticker.C

				start := time.Now()
				data, err := eng.Read(ctx, path, nil)
				elapsed := time.Since(start)

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()

				if err != nil {
					logger.WithError(err).WithField("path", path).Debug("loadtest read failed")
					atomic.AddInt64(&errs, 1)
					continue
				}
				atomic.AddInt64(&read, 1)
				atomic.AddInt64(&bytes, int64(len(data)))
			}
		}(w)
	}
	wg.Wait()

	return buildResult("read", read, errs, cfg.Duration, bytes, latencies), nil
}

func buildResult(op string, ops, errs int64, dur time.Duration, bytesTransferred int64, latencies []time.Duration) *LoadTestResult {
	p50, p95, p99 := percentiles(latencies)
	seconds := dur.Seconds()
	if seconds == 0 {
		seconds = 1
	}
	return &LoadTestResult{
		Operation:        op,
		TotalOps:         ops,
		TotalErrors:      errs,
		Duration:         dur,
		BytesTransferred: bytesTransferred,
		ThroughputMBps:   float64(bytesTransferred) / (1024 * 1024) / seconds,
		OpsPerSecond:     float64(ops) / seconds,
		LatencyP50Ms:     p50,
		LatencyP95Ms:     p95,
		LatencyP99Ms:     p99,
	}
}

func percentiles(latencies []time.Duration) (p50, p95, p99 float64) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(pct float64) float64 {
		idx := int(pct * float64(len(sorted)-1))
		return float64(sorted[idx]) / float64(time.Millisecond)
	}
	return at(0.50), at(0.95), at(0.99)
}

func randomPayload(size int64, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, size)
	r.Read(buf)
	return buf
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PrintLoadTestResult writes a human-readable summary to stdout, mirroring
// the teacher's PrintLoadTestResults console report.
func PrintLoadTestResult(r *LoadTestResult) {
	fmt.Printf("Operation:        %s\n", r.Operation)
	fmt.Printf("Total Ops:        %d (%d errors)\n", r.TotalOps, r.TotalErrors)
	fmt.Printf("Duration:         %v\n", r.Duration)
	fmt.Printf("Throughput:       %.2f MB/s\n", r.ThroughputMBps)
	fmt.Printf("Ops/sec:          %.2f\n", r.OpsPerSecond)
	fmt.Printf("Latency p50/p95/p99 (ms): %.2f / %.2f / %.2f\n", r.LatencyP50Ms, r.LatencyP95Ms, r.LatencyP99Ms)
}

// RegressionResult compares a fresh LoadTestResult against a previously
// recorded baseline.
type RegressionResult struct {
	Operation             string  `json:"operation"`
	BaselineThroughputMBps float64 `json:"baseline_throughput_mbps"`
	CurrentThroughputMBps  float64 `json:"current_throughput_mbps"`
	ThroughputDeltaPercent float64 `json:"throughput_delta_percent"`
	SignificantRegression  bool    `json:"significant_regression"`
}

// AnalyzeRegression loads baselineFile (a prior LoadTestResult, written by
// WriteBaseline) and compares its throughput against result's. A drop of
// more than thresholdPercent is flagged as a significant regression.
// Returns an *os.PathError satisfying os.IsNotExist when no baseline has
// been recorded yet.
func AnalyzeRegression(result *LoadTestResult, baselineFile string, thresholdPercent float64) (*RegressionResult, error) {
	raw, err := os.ReadFile(baselineFile)
	if err != nil {
		return nil, err
	}
	var baseline LoadTestResult
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil, fmt.Errorf("loadtest: decode baseline %s: %w", baselineFile, err)
	}

	delta := 0.0
	if baseline.ThroughputMBps > 0 {
		delta = (result.ThroughputMBps - baseline.ThroughputMBps) / baseline.ThroughputMBps * 100
	}

	return &RegressionResult{
		Operation:              result.Operation,
		BaselineThroughputMBps: baseline.ThroughputMBps,
		CurrentThroughputMBps:  result.ThroughputMBps,
		ThroughputDeltaPercent: delta,
		SignificantRegression:  delta < -thresholdPercent,
	}, nil
}

// PrintRegressionResult writes a human-readable regression summary.
func PrintRegressionResult(r *RegressionResult) {
	fmt.Printf("Baseline throughput: %.2f MB/s\n", r.BaselineThroughputMBps)
	fmt.Printf("Current throughput:  %.2f MB/s (%+.1f%%)\n", r.CurrentThroughputMBps, r.ThroughputDeltaPercent)
	if r.SignificantRegression {
		fmt.Println("REGRESSION: throughput dropped beyond threshold")
	}
}

// WriteBaseline persists result as the new baseline at baselineFile.
func WriteBaseline(result *LoadTestResult, baselineFile string) error {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(baselineFile, raw, 0o644)
}
