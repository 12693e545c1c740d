package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/buildcached/internal/bytesize"
)

// ApplyDefaults fills every zero-valued field in cfg with the same
// defaults each component's own DefaultConfig constructor would choose,
// so a config file (or environment) only needs to set what it wants to
// override. Boolean fields are left as given; Election.Eligible is the one
// whose component default (true) is therefore not applied.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Telemetry.SampleRate <= 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu"}
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Identity.Machine == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Identity.Machine = host
		}
	}
	if cfg.Identity.Epoch == "" {
		cfg.Identity.Epoch = "default"
	}

	applyBlobstoreDefaults(&cfg.Blobstore)
	applyLocalCASDefaults(&cfg.LocalCAS)
	applyTwoLevelDefaults(&cfg.TwoLevel)
	applyMemoDefaults(&cfg.Memo)
	applyElectionDefaults(&cfg.Election, cfg.Identity.Machine)
	applyEventTransportDefaults(&cfg.EventGRPC)
	applyCopyClientDefaults(&cfg.CopyClient)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyBlobstoreDefaults(c *BlobstoreConfig) {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Container == "" {
		c.Container = "buildcached"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
}

func applyLocalCASDefaults(c *LocalCASConfig) {
	if c.RootDir == "" {
		c.RootDir = filepath.Join(getConfigDir(), "cas")
	}
	if c.MaxSize == 0 {
		c.MaxSize = 10 * bytesize.GiB
	}
	if c.GCTargetFraction <= 0 {
		c.GCTargetFraction = 0.9
	}
	if c.GCInterval <= 0 {
		c.GCInterval = 5 * time.Minute
	}
}

func applyTwoLevelDefaults(c *TwoLevelConfig) {
	if c.ElisionTTL <= 0 {
		c.ElisionTTL = 30 * time.Second
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 50
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 100 * time.Millisecond
	}
	if c.BatchParallelism <= 0 {
		c.BatchParallelism = 4
	}
}

func applyMemoDefaults(c *MemoConfig) {
	if c.Dir == "" {
		c.Dir = filepath.Join(getConfigDir(), "memo")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Policy == "" {
		c.Policy = "allow_pin_elision"
	}
}

func applyElectionDefaults(c *ElectionConfig, machine string) {
	if c.Key == "" {
		c.Key = "master.json"
	}
	if c.Me == "" {
		c.Me = machine
	}
	if c.LeaseExpiry <= 0 {
		c.LeaseExpiry = 10 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

func applyEventTransportDefaults(c *TransportConfig) {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.Partitions <= 0 {
		c.Partitions = 8
	}
	if c.PartitionCapacity <= 0 {
		c.PartitionCapacity = 64
	}
	if c.Validation == "" {
		c.Validation = "trace"
	}
	if c.MaxPublishRetries <= 0 {
		c.MaxPublishRetries = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
}

func applyCopyClientDefaults(c *CopyClientConfig) {
	if c.MaxConnectionsPerPeer <= 0 {
		c.MaxConnectionsPerPeer = 4
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 2 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.TimeToFirstByteTimeout <= 0 {
		c.TimeToFirstByteTimeout = 10 * time.Second
	}
	if c.BandwidthFloorBytesPerSec <= 0 {
		c.BandwidthFloorBytesPerSec = 64 * 1024
	}
	if c.BandwidthCheckInterval <= 0 {
		c.BandwidthCheckInterval = time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
}
