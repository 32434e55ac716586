// Package brokertest checks the configured sinks by publishing synthetic tag
// events through them and reporting latency.
package brokertest

import (
	"fmt"
	"io"
	"slices"
	"time"

	"signaltap/events"
)

// TestConfig holds configuration for a sink check.
type TestConfig struct {
	// Messages is how many events are published to each sink
	Messages int
	// NumTags spreads the events across this many tag names
	NumTags int
	// PLC is the source address stamped on the events
	PLC string
}

// DefaultTestConfig returns the defaults used by -check-sinks.
func DefaultTestConfig() TestConfig {
	return TestConfig{
		Messages: 100,
		NumTags:  10,
		PLC:      "0.0.0.0",
	}
}

// TestResult holds the outcome for one sink.
type TestResult struct {
	Sink         string
	Duration     time.Duration
	MessagesSent int
	Errors       int
	Throughput   float64 // messages per second
	AvgLatency   time.Duration
	P50Latency   time.Duration
	P95Latency   time.Duration
	P99Latency   time.Duration
	MaxLatency   time.Duration
	Success      bool
	Error        error // first publish error
}

// Runner publishes synthetic events to a set of sinks.
type Runner struct {
	sinks   []events.Sink
	testCfg TestConfig
}

// NewRunner creates a runner for the given sinks.
func NewRunner(testCfg TestConfig, sinks ...events.Sink) *Runner {
	if testCfg.Messages <= 0 {
		testCfg.Messages = 1
	}
	if testCfg.NumTags <= 0 {
		testCfg.NumTags = 1
	}
	return &Runner{sinks: sinks, testCfg: testCfg}
}

// Event returns the i-th synthetic event.
func (r *Runner) Event(i int) events.Event {
	return events.Event{
		Type:      events.TagRead,
		Timestamp: time.Now().UTC(),
		PLC:       r.testCfg.PLC,
		Tag:       fmt.Sprintf("SinkCheck_%03d", i%r.testCfg.NumTags),
		DataType:  "DINT",
		Value:     int64(i),
		Success:   true,
	}
}

// Run checks every sink in turn. Sinks are called directly, not through a
// bus, so each publish latency is measured on its own.
func (r *Runner) Run() []TestResult {
	results := make([]TestResult, 0, len(r.sinks))
	for _, s := range r.sinks {
		results = append(results, r.run(s))
	}
	return results
}

func (r *Runner) run(s events.Sink) TestResult {
	result := TestResult{Sink: s.Name()}
	latencies := make([]time.Duration, 0, r.testCfg.Messages)

	start := time.Now()
	for i := 0; i < r.testCfg.Messages; i++ {
		t := time.Now()
		err := s.Publish(r.Event(i))
		if err != nil {
			result.Errors++
			if result.Error == nil {
				result.Error = err
			}
			continue
		}
		latencies = append(latencies, time.Since(t))
		result.MessagesSent++
	}
	result.Duration = time.Since(start)

	if result.Duration > 0 {
		result.Throughput = float64(result.MessagesSent) / result.Duration.Seconds()
	}
	result.AvgLatency, result.P50Latency, result.P95Latency, result.P99Latency, result.MaxLatency = calculateLatencyStats(latencies)
	result.Success = result.Errors == 0 && result.MessagesSent > 0
	return result
}

func calculateLatencyStats(latencies []time.Duration) (avg, p50, p95, p99, max time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	avg = total / time.Duration(len(sorted))

	at := func(p float64) time.Duration {
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}
	return avg, at(0.50), at(0.95), at(0.99), sorted[len(sorted)-1]
}

// Report writes a summary of results to w and returns the number of failures.
func Report(w io.Writer, results []TestResult) int {
	if len(results) == 0 {
		fmt.Fprintln(w, "  No sinks configured.")
		return 0
	}

	failed := 0
	for _, result := range results {
		status := "PASS"
		if !result.Success {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "  %-7s %s  %d sent, %d errors, %.0f msg/s\n",
			result.Sink, status, result.MessagesSent, result.Errors, result.Throughput)
		if result.AvgLatency > 0 {
			fmt.Fprintf(w, "          avg: %v, p50: %v, p95: %v, p99: %v, max: %v\n",
				result.AvgLatency.Round(time.Microsecond),
				result.P50Latency.Round(time.Microsecond),
				result.P95Latency.Round(time.Microsecond),
				result.P99Latency.Round(time.Microsecond),
				result.MaxLatency.Round(time.Microsecond))
		}
		if result.Error != nil {
			fmt.Fprintf(w, "          error: %v\n", result.Error)
		}
	}
	fmt.Fprintf(w, "  Summary: %d passed, %d failed\n", len(results)-failed, failed)
	return failed
}
