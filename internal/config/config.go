// Package config loads the cache core's process configuration: a plain
// struct, filled from a YAML file and BUILDCACHED_*-style environment
// overrides via viper, with no CLI framework of its own. cmd/buildcached
// is the only consumer; component packages never import this package,
// they take their own Config structs built from the fields here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/buildcached/internal/bytesize"
)

// Config is the top-level process configuration for buildcached.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	Blobstore  BlobstoreConfig  `mapstructure:"blobstore" yaml:"blobstore"`
	LocalCAS   LocalCASConfig   `mapstructure:"local_cas" yaml:"local_cas"`
	TwoLevel   TwoLevelConfig   `mapstructure:"two_level" yaml:"two_level"`
	Memo       MemoConfig       `mapstructure:"memo" yaml:"memo"`
	Election   ElectionConfig   `mapstructure:"election" yaml:"election"`
	EventGRPC  TransportConfig  `mapstructure:"event_transport" yaml:"event_transport"`
	CopyClient CopyClientConfig `mapstructure:"copy_client" yaml:"copy_client"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls internal/telemetry.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls internal/telemetry's Pyroscope continuous
// profiler.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls the Prometheus HTTP exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// IdentityConfig names this process within the fleet: which machine it is
// (pkg/eventstream SenderMachine, pkg/election Me) and which epoch of the
// event stream it belongs to.
type IdentityConfig struct {
	Machine string `mapstructure:"machine" yaml:"machine"`
	Epoch   string `mapstructure:"epoch" yaml:"epoch"`
}

// BlobstoreConfig mirrors pkg/blobstore.Config plus the container name
// every component's blob operations are scoped to.
type BlobstoreConfig struct {
	Region         string        `mapstructure:"region" yaml:"region"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool          `mapstructure:"force_path_style" yaml:"force_path_style"`
	Container      string        `mapstructure:"container" yaml:"container"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// LocalCASConfig mirrors pkg/localcas.Config, with MaxSize expressed in
// the human-readable form internal/bytesize parses ("10Gi", "500MB").
type LocalCASConfig struct {
	RootDir          string            `mapstructure:"root_dir" yaml:"root_dir"`
	MaxSize          bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`
	GCTargetFraction float64           `mapstructure:"gc_target_fraction" yaml:"gc_target_fraction"`
	GCInterval       time.Duration     `mapstructure:"gc_interval" yaml:"gc_interval"`
}

// TwoLevelConfig mirrors pkg/twolevel.Config.
type TwoLevelConfig struct {
	RemoteReadOnly               bool          `mapstructure:"remote_read_only" yaml:"remote_read_only"`
	AlwaysUpdateFromRemote       bool          `mapstructure:"always_update_from_remote" yaml:"always_update_from_remote"`
	SkipRemotePutIfExistsLocally bool          `mapstructure:"skip_remote_put_if_exists_locally" yaml:"skip_remote_put_if_exists_locally"`
	ElisionTTL                   time.Duration `mapstructure:"elision_ttl" yaml:"elision_ttl"`
	SkipRemotePinOnPut           bool          `mapstructure:"skip_remote_pin_on_put" yaml:"skip_remote_pin_on_put"`
	BatchRemotePinsOnPut         bool          `mapstructure:"batch_remote_pins_on_put" yaml:"batch_remote_pins_on_put"`
	BatchMaxSize                 int           `mapstructure:"batch_max_size" yaml:"batch_max_size"`
	BatchInterval                time.Duration `mapstructure:"batch_interval" yaml:"batch_interval"`
	BatchParallelism             int           `mapstructure:"batch_parallelism" yaml:"batch_parallelism"`
	TempDir                      string        `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// MemoConfig mirrors pkg/memo.Config.
type MemoConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`
	MaxAttempts    int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	Policy         string `mapstructure:"policy" yaml:"policy"`
	OptimizeWrites bool   `mapstructure:"optimize_writes" yaml:"optimize_writes"`
}

// ElectionConfig mirrors pkg/election.Config. Me defaults from
// IdentityConfig.Machine when left unset. Eligible gets no default: a
// config that omits it leaves the node ineligible, unlike
// pkg/election.DefaultConfig, which sets it to true.
type ElectionConfig struct {
	Container         string        `mapstructure:"container" yaml:"container"`
	Key               string        `mapstructure:"key" yaml:"key"`
	Me                string        `mapstructure:"me" yaml:"me"`
	Eligible          bool          `mapstructure:"eligible" yaml:"eligible"`
	LeaseExpiry       time.Duration `mapstructure:"lease_expiry" yaml:"lease_expiry"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// TransportConfig configures the event stream's gRPC transport: the
// address this process's gRPC server (which hosts the event subscriber and
// the copy service) listens on, and the peer addresses its publisher dials
// to send this process's events.
type TransportConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	Peers             []string      `mapstructure:"peers" yaml:"peers"`
	MaxBatchSize      int           `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	Partitions        int           `mapstructure:"partitions" yaml:"partitions"`
	PartitionCapacity int           `mapstructure:"partition_capacity" yaml:"partition_capacity"`
	Validation        string        `mapstructure:"validation" yaml:"validation"`
	MaxPublishRetries int           `mapstructure:"max_publish_retries" yaml:"max_publish_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// CopyClientConfig mirrors pkg/copyclient.Config.
type CopyClientConfig struct {
	ListenAddr                string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxConnectionsPerPeer     int           `mapstructure:"max_connections_per_peer" yaml:"max_connections_per_peer"`
	IdleWindow                time.Duration `mapstructure:"idle_window" yaml:"idle_window"`
	ConnectTimeout            time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	TimeToFirstByteTimeout    time.Duration `mapstructure:"time_to_first_byte_timeout" yaml:"time_to_first_byte_timeout"`
	BandwidthFloorBytesPerSec float64       `mapstructure:"bandwidth_floor_bytes_per_sec" yaml:"bandwidth_floor_bytes_per_sec"`
	BandwidthCheckInterval    time.Duration `mapstructure:"bandwidth_check_interval" yaml:"bandwidth_check_interval"`
	Compress                  bool          `mapstructure:"compress" yaml:"compress"`
	ReapInterval              time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
}

// Load reads configuration from configPath (or the default location when
// empty), overlays BUILDCACHED_*-prefixed environment variables, and fills any
// unset fields with ApplyDefaults. Precedence, highest to lowest: env vars,
// config file, defaults. Environment variables are only read for keys the
// config file also sets; when no config file is found, none are read and
// cfg holds only the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BUILDCACHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "buildcached")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buildcached"
	}
	return filepath.Join(home, ".config", "buildcached")
}

// GetDefaultConfigPath returns where Load looks for a config file absent
// an explicit path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a file exists at GetDefaultConfigPath.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
