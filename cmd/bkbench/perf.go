package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolbv/ledgerclient/client"
	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/stats"
	"github.com/kolbv/ledgerclient/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "benchmark add/read throughput against a storage node",
		PreRunE: bindFlags,
		RunE:    runPerf,
	}
	perfPayloadSizeKB = 1
	perfThreads       = 10
	perfLedgerSpread  = 10
)

func init() {
	key := "threads"
	perfCmd.Flags().Int(key, 10, wrapString("Number of concurrent goroutines to drive the benchmark with"))
	key = "payload-size"
	perfCmd.Flags().Int(key, 1, wrapString("Size of the add payload, in KB"))
	key = "ledgers"
	perfCmd.Flags().Int(key, 10, wrapString("Number of distinct ledgers to spread load across"))
	key = "csv"
	perfCmd.Flags().String(key, "", wrapString("Optional path to write benchmark results as CSV"))
	key = "metrics-out"
	perfCmd.Flags().String(key, "", wrapString("Optional path to write a Prometheus exposition snapshot of per-op latency histograms"))
}

func runPerf(cmd *cobra.Command, args []string) error {
	perfThreads = viper.GetInt("threads")
	perfPayloadSizeKB = viper.GetInt("payload-size")
	perfLedgerSpread = viper.GetInt("ledgers")

	addr, err := serverAddress()
	if err != nil {
		return err
	}

	cfg := clientConfig()
	var sink *stats.VictoriaMetricsSink
	if viper.GetString("metrics-out") != "" {
		sink = stats.NewVictoriaMetricsSink()
		cfg.Stats = sink
	}

	c := client.New(cfg)
	defer c.Close()

	masterKey := make([]byte, wire.MasterKeyLength)
	payload := make([]byte, perfPayloadSizeKB*1024)

	fmt.Println("bkbench perf")
	fmt.Printf("server: %s, threads: %d, ledgers: %d, payload: %dKB\n\n", addr, perfThreads, perfLedgerSpread, perfPayloadSizeKB)

	results := make(map[string]testing.BenchmarkResult)

	addResult := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfThreads)
		b.ResetTimer()

		var counter uint64
		var failures int64
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				ledger := atomic.AddUint64(&counter, 1) % uint64(perfLedgerSpread)
				if !syncAdd(c, addr, ledger, masterKey, payload) {
					atomic.AddInt64(&failures, 1)
				}
			}
		})
		if failures > 0 {
			fmt.Printf("(add) - %d failures\n", failures)
		}
	})
	results["add"] = addResult
	printResult("add", addResult)

	// Seed one entry per ledger so the read benchmark has something to fetch.
	for l := uint64(0); l < uint64(perfLedgerSpread); l++ {
		syncAdd(c, addr, l, masterKey, payload)
	}

	readResult := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfThreads)
		b.ResetTimer()

		var counter uint64
		var failures int64
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				ledger := atomic.AddUint64(&counter, 1) % uint64(perfLedgerSpread)
				if !syncRead(c, addr, ledger) {
					atomic.AddInt64(&failures, 1)
				}
			}
		})
		if failures > 0 {
			fmt.Printf("(read) - %d failures\n", failures)
		}
	})
	results["read"] = readResult
	printResult("read", readResult)

	fmt.Println("\nconnection topology:")
	cfg.Gauges.Each(func(name string, value interface{}) {
		fmt.Printf("  %s = %v\n", name, value)
	})

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nexporting results to %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, addr); err != nil {
			return fmt.Errorf("failed to export results: %w", err)
		}
	}

	if metricsPath := viper.GetString("metrics-out"); metricsPath != "" && sink != nil {
		f, err := os.Create(metricsPath)
		if err != nil {
			return fmt.Errorf("failed to create metrics file: %w", err)
		}
		defer f.Close()
		sink.WritePrometheus(f)
		fmt.Printf("wrote latency histograms to %s\n", metricsPath)
	}

	return nil
}

func syncAdd(c *client.Client, addr wire.ServerAddress, ledger uint64, masterKey, payload []byte) bool {
	done := make(chan errs.Code, 1)
	c.AddEntry(addr, ledger, masterKey, 0, payload, func(code errs.Code, l wire.LedgerID, e wire.EntryID, a wire.ServerAddress, ctx interface{}) {
		done <- code
	}, nil)
	select {
	case code := <-done:
		return code == errs.OK
	case <-time.After(10 * time.Second):
		return false
	}
}

func syncRead(c *client.Client, addr wire.ServerAddress, ledger uint64) bool {
	done := make(chan errs.Code, 1)
	c.ReadEntry(addr, ledger, wire.LastAddConfirmed, func(code errs.Code, l wire.LedgerID, e wire.EntryID, payload []byte, ctx interface{}) {
		done <- code
	}, nil)
	select {
	case code := <-done:
		return code == errs.OK
	case <-time.After(10 * time.Second):
		return false
	}
}

func printResult(name string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-10sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-10s%.0fns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func writeResultsToCSV(path string, results map[string]testing.BenchmarkResult, addr wire.ServerAddress) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"op", "ns_per_op", "ops_per_sec", "server", "threads", "ledgers", "payload_kb"}
	if err := w.Write(header); err != nil {
		return err
	}
	for op, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)
		row := []string{
			op,
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", opsPerSec),
			addr.String(),
			strconv.Itoa(perfThreads),
			strconv.Itoa(perfLedgerSpread),
			strconv.Itoa(perfPayloadSizeKB),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
