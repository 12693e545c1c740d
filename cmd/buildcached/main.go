// Command buildcached runs one node of the distributed build cache: a
// local content-addressed store fronting a shared remote one, the
// memoization store mapping build actions to their outputs, master
// election over the fleet's background-maintenance role, the event
// stream propagating cache state between peers, and the peer-to-peer
// copy client pool used as a cache-miss fallback.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marmos91/buildcached/internal/config"
	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/internal/telemetry"

	_ "github.com/marmos91/buildcached/pkg/metrics/prometheus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `buildcached - distributed build cache daemon

Usage:
  buildcached <command> [flags]

Commands:
  init     Write a sample configuration file
  start    Start the cache node
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/buildcached/config.yaml)
  --force            Force overwrite existing config file (init command only)

Environment Variables:
  Every configuration key can be overridden with BUILDCACHED_<SECTION>_<KEY>,
  e.g. BUILDCACHED_LOGGING_LEVEL=DEBUG.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("buildcached %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file")
	force := initFlags.Bool("force", false, "Overwrite an existing config file")
	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if !*force {
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("config already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := writeSampleConfig(path); err != nil {
		log.Fatalf("init: %v", err)
	}
	fmt.Printf("wrote sample configuration to %s\n", path)
}

func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file")
	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	if *configFile == "" && !config.DefaultConfigExists() {
		fmt.Fprintf(os.Stderr, "no configuration file found at %s; run `buildcached init` first\n", config.GetDefaultConfigPath())
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "buildcached",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "buildcached",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("init profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("buildcached starting", "version", version, "machine", cfg.Identity.Machine, "epoch", cfg.Identity.Epoch)

	node, err := newNode(ctx, cfg)
	if err != nil {
		log.Fatalf("wire node: %v", err)
	}
	defer node.Close()

	if err := node.Run(ctx); err != nil {
		logger.Error("node exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("buildcached stopped")
}

func writeSampleConfig(path string) error {
	const sample = `# buildcached sample configuration
logging:
  level: info
  format: json
  output: stderr

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

metrics:
  enabled: true
  port: 9090

identity:
  machine: ""
  epoch: default

blobstore:
  region: us-east-1
  container: buildcached
  force_path_style: false

local_cas:
  root_dir: ""
  max_size: 10Gi
  gc_target_fraction: 0.9
  gc_interval: 5m

two_level:
  elision_ttl: 30s
  batch_max_size: 50
  batch_interval: 100ms
  batch_parallelism: 4

memo:
  dir: ""
  max_attempts: 5
  policy: allow_pin_elision

election:
  container: buildcached
  key: master.json
  eligible: true
  lease_expiry: 10m
  heartbeat_interval: 1m

event_transport:
  listen_addr: ":7070"
  peers: []
  max_batch_size: 100
  partitions: 8
  partition_capacity: 64
  validation: trace

copy_client:
  listen_addr: ":7071"
  max_connections_per_peer: 4
  idle_window: 2m

shutdown_timeout: 30s
`
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sample), 0o644)
}
