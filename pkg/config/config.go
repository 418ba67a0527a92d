// Package config assembles static configuration for mimicd from, in
// ascending precedence, built-in defaults, a YAML file (whose path the
// --config flag selects), and MIMIC_-prefixed environment variables,
// mirroring the teacher's layered
// viper/mapstructure/validate approach.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/foundrysync/mimic/internal/validate"
)

// Config is the complete static configuration for one mimicd process.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (MIMIC_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Document  DocumentConfig  `mapstructure:"document" yaml:"document"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Sharding  ShardingConfig  `mapstructure:"sharding" yaml:"sharding"`
}

// LoggingConfig controls slog output. Level and Format are hot-reloadable.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// TelemetryConfig controls OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// ServerConfig controls the WebSocket listener. BasePath is load-once.
type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
	BasePath          string        `mapstructure:"base_path" yaml:"base_path"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// DocumentConfig controls per-document runtime tunables. MaxIdleTime,
// MaxTransactionHistory, and the snapshot fields are hot-reloadable.
type DocumentConfig struct {
	MaxIdleTime                  time.Duration `mapstructure:"max_idle_time" yaml:"max_idle_time"`
	MaxTransactionHistory        int           `mapstructure:"max_transaction_history" yaml:"max_transaction_history"`
	SnapshotInterval              time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	SnapshotTransactionThreshold  int           `mapstructure:"snapshot_transaction_threshold" yaml:"snapshot_transaction_threshold"`
	StorageCallTimeout            time.Duration `mapstructure:"storage_call_timeout" yaml:"storage_call_timeout"`
	GCInterval                    time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
	PresenceEnabled                bool         `mapstructure:"presence_enabled" yaml:"presence_enabled"`
}

// BroadcastConfig controls the per-subscriber broadcast channel. Both
// fields are hot-reloadable.
type BroadcastConfig struct {
	BufferSize     int    `mapstructure:"buffer_size" validate:"omitempty,gt=0" yaml:"buffer_size"`
	OverflowPolicy string `mapstructure:"overflow_policy" validate:"omitempty,oneof=dropOldest dropNewest disconnect" yaml:"overflow_policy"`
}

// StorageConfig selects and configures the Hot/Cold Storage drivers.
// Driver selection is load-once.
type StorageConfig struct {
	ColdStorage ColdStorageConfig `mapstructure:"cold_storage" yaml:"cold_storage"`
	HotStorage  HotStorageConfig  `mapstructure:"hot_storage" yaml:"hot_storage"`
}

// ColdStorageConfig selects the snapshot store.
type ColdStorageConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=memory postgres" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// HotStorageConfig selects the WAL store.
type HotStorageConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=memory badger" yaml:"driver"`
	Dir    string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// AuthConfig selects and configures the auth provider. Driver selection is
// load-once.
type AuthConfig struct {
	Driver string           `mapstructure:"driver" validate:"omitempty,oneof=static jwt" yaml:"driver"`
	Static StaticAuthConfig `mapstructure:"static" yaml:"static"`
	JWT    JWTAuthConfig    `mapstructure:"jwt" yaml:"jwt"`
}

// StaticAuthConfig is the token -> {user, permission} map for the static
// auth provider.
type StaticAuthConfig struct {
	Tokens map[string]StaticIdentity `mapstructure:"tokens" yaml:"tokens,omitempty"`
}

// StaticIdentity is one static-provider token's resolved identity.
type StaticIdentity struct {
	UserID     string `mapstructure:"user_id" yaml:"user_id"`
	Permission string `mapstructure:"permission" validate:"omitempty,oneof=read write" yaml:"permission"`
}

// JWTAuthConfig configures the JWT auth provider.
type JWTAuthConfig struct {
	HMACSecret   string `mapstructure:"hmac_secret" yaml:"hmac_secret,omitempty"`
	RSAPublicKey string `mapstructure:"rsa_public_key_path" yaml:"rsa_public_key_path,omitempty"`
}

// ShardingConfig configures the sharded variant. Disabled by default: a
// single process serves every document locally.
type ShardingConfig struct {
	Enabled          bool              `mapstructure:"enabled" yaml:"enabled"`
	NodeID           string            `mapstructure:"node_id" validate:"required_if=Enabled true" yaml:"node_id,omitempty"`
	ListenAddr       string            `mapstructure:"listen_addr" yaml:"listen_addr,omitempty"`
	Members          map[string]string `mapstructure:"members" yaml:"members,omitempty"`
	VirtualNodes     int               `mapstructure:"virtual_nodes" yaml:"virtual_nodes,omitempty"`
	MailboxCapacity  int               `mapstructure:"mailbox_capacity" yaml:"mailbox_capacity,omitempty"`
}

// Load assembles configuration from defaults, an optional YAML file at
// configPath (ignored if empty and absent), and MIMIC_-prefixed
// environment variables, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MIMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("mimic")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// applyEnvOverrides is a light pass for the few fields callers most often
// override without a file, since viper's automatic env binding only
// reaches keys already present from a file or a prior Set call.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIMIC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIMIC_SERVER_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
