package main

import (
	"fmt"
	"log/slog"
	"os"

	"signaltap/brokertest"
	"signaltap/config"
	"signaltap/events"
	"signaltap/logging"
)

// runSinkCheck connects the enabled sinks, publishes synthetic tag events
// through each and prints the report. It returns false when any sink failed.
func runSinkCheck(cfg *config.Config) bool {
	sinks := loadSinks(cfg)
	sinks.startAll(logging.NewLogger(slog.LevelInfo, os.Stderr))

	var connected []events.Sink
	if sinks.mqtt.AnyRunning() {
		connected = append(connected, sinks.mqtt)
	}
	if sinks.valkey.AnyRunning() {
		connected = append(connected, sinks.valkey)
	}
	if sinks.kafka.AnyPublishing() {
		connected = append(connected, sinks.kafka)
	}
	if len(connected) == 0 {
		fmt.Println("No sinks connected. Enable mqtt, valkey or kafka entries in the config file.")
		sinks.stopAll()
		return false
	}

	runner := brokertest.NewRunner(brokertest.DefaultTestConfig(), connected...)
	results := runner.Run()
	// Kafka publishes through a worker queue; StopAll flushes it.
	sinks.stopAll()

	fmt.Println()
	fmt.Println("Sink check")
	failed := brokertest.Report(os.Stdout, results)
	return failed == 0
}
