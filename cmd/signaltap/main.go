// SignalTap - REST API for Allen-Bradley PLC tags
//
// Serves tag discovery, reads, writes and device information over HTTP.
// Each request opens its own PLC session. Results can be republished to
// MQTT, Valkey and Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signaltap/config"
	"signaltap/events"
	"signaltap/kafka"
	"signaltap/logging"
	"signaltap/metrics"
	"signaltap/mqtt"
	"signaltap/plcman"
	"signaltap/valkey"
	"signaltap/web"
)

// Version is set at build time via -ldflags
var Version = "dev"

// preprocessLogDebugFlag handles --log-debug without a value by injecting "all".
func preprocessLogDebugFlag() {
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--log-debug" || arg == "-log-debug" {
			if i+1 >= len(args) || (len(args[i+1]) > 0 && args[i+1][0] == '-') {
				os.Args = append(os.Args[:i+2], append([]string{"all"}, os.Args[i+2:]...)...)
			}
			return
		}
	}
}

// Command line flags
var (
	configPath  = flag.String("config", config.DefaultPath(), "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version and exit")
	namespace   = flag.String("namespace", "", "Set namespace (saved to config)")
	httpPort    = flag.Int("p", 0, "HTTP listen port (overrides config)")
	httpHost    = flag.String("host", "", "HTTP bind address (overrides config)")
	adminUser   = flag.String("admin-user", "", "Create/update API user (saves to config)")
	adminPass   = flag.String("admin-pass", "", "Password for API user (saves to config)")
	logFile     = flag.String("log", "", "Path to log file (optional)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logDebug    = flag.String("log-debug", "", "Enable protocol debug logging to debug.log")
	checkSinks  = flag.Bool("check-sinks", false, "Publish a test event to every enabled sink and exit")
)

func main() {
	preprocessLogDebugFlag()
	flag.Parse()

	if *showVersion {
		fmt.Printf("signaltap %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *namespace != "" {
		if !config.IsValidNamespace(*namespace) {
			fmt.Fprintf(os.Stderr, "Error: invalid namespace '%s' (use alphanumeric, hyphen, underscore, dot)\n", *namespace)
			os.Exit(1)
		}
		cfg.Namespace = *namespace
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Namespace set to '%s' and saved to config\n", *namespace)
	}

	// Overrides from flags are in memory only
	if *httpPort != 0 {
		cfg.Server.Port = *httpPort
	}
	if *httpHost != "" {
		cfg.Server.Host = *httpHost
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if *adminUser != "" && *adminPass != "" {
		hash, err := web.HashPassword(*adminPass)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			os.Exit(1)
		}
		cfg.SetUser(config.APIUser{Username: *adminUser, PasswordHash: hash})
		cfg.Auth.Enabled = true
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("API user '%s' configured, basic auth enabled\n", *adminUser)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if *checkSinks {
		if !runSinkCheck(cfg) {
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sinkSet groups the republishing managers.
type sinkSet struct {
	mqtt   *mqtt.Manager
	valkey *valkey.Manager
	kafka  *kafka.Manager
}

func loadSinks(cfg *config.Config) sinkSet {
	s := sinkSet{
		mqtt:   mqtt.NewManager(),
		valkey: valkey.NewManager(),
		kafka:  kafka.NewManager(),
	}
	s.mqtt.LoadFromConfig(cfg.MQTT, cfg.Namespace)
	s.valkey.LoadFromConfig(cfg.Valkey, cfg.Namespace)
	s.kafka.LoadFromConfig(cfg.Kafka, cfg.Namespace)
	return s
}

func (s sinkSet) all() []events.Sink {
	return []events.Sink{s.mqtt, s.valkey, s.kafka}
}

func (s sinkSet) startAll(log *slog.Logger) {
	started := s.mqtt.StartAll() + s.valkey.StartAll() + s.kafka.StartAll()
	if started > 0 {
		log.Info("sinks started", "count", started)
	}
}

func (s sinkSet) stopAll() {
	s.mqtt.StopAll()
	s.valkey.StopAll()
	s.kafka.StopAll()
}

// run serves the API until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	outputs := []io.Writer{os.Stderr}
	var fileLogger *logging.FileLogger
	if *logFile != "" {
		fileLogger, err = logging.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open log file: %v\n", err)
		} else {
			outputs = append(outputs, fileLogger)
			defer fileLogger.Close()
		}
	}
	log := logging.NewLogger(level, outputs...)
	slog.SetDefault(log)

	if *logDebug != "" {
		debugLogger, err := logging.NewDebugLogger("debug.log")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open debug log: %v\n", err)
		} else {
			filter := *logDebug
			if filter == "all" || filter == "true" || filter == "1" {
				filter = ""
			}
			debugLogger.SetFilter(filter)
			logging.SetGlobalDebugLogger(debugLogger)
			defer debugLogger.Close()
			if filter == "" {
				log.Info("debug logging enabled", "file", "debug.log", "protocols", "all")
			} else {
				log.Info("debug logging enabled", "file", "debug.log", "protocols", filter)
			}
		}
	}

	bus := events.NewBus(cfg.Events.QueueSize)
	if cfg.Metrics.Enabled {
		if err := metrics.RegisterQueueGauge(prometheus.DefaultRegisterer, bus.Pending, bus.Dropped); err != nil {
			log.Warn("event queue metrics unavailable", "error", err)
		}
	}

	sinks := loadSinks(cfg)
	for _, s := range sinks.all() {
		bus.AddSink(s)
	}
	go sinks.startAll(log)

	manager := plcman.NewManager(plcman.Options{
		MaxSessionsPerPLC: cfg.PLC.MaxSessionsPerPLC,
		DefaultTimeout:    cfg.PLCDefaultTimeout(),
		MaxTimeout:        cfg.PLCMaxTimeout(),
		Events:            bus,
		Logger:            log,
	})

	server := web.NewServer(cfg, manager, log)
	if err := server.Start(); err != nil {
		sinks.stopAll()
		bus.Close()
		return err
	}
	fmt.Printf("SignalTap API at %s%s/\n", server.Address(), cfg.Server.APIPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	fmt.Println("\nShutting down...")

	shutdownDone := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		bus.Close()
		sinks.stopAll()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(10 * time.Second):
		log.Warn("shutdown timed out")
	}

	fmt.Println("Stopped")
	return nil
}
