// Package sfconfig loads the ambient runtime configuration for sshvfs
// hosts (log level, metrics exposure, default transport tunables), modeled
// on shellcn's internal/app.LoadConfig.
package sfconfig

import (
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sshvfs/sshvfs/internal/transport"
)

// Config is the ambient configuration for a process embedding sshvfs. It is
// distinct from the per-endpoint ConnectionParameters a caller passes to
// open a file: this governs logging, metrics and library-wide defaults.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultsConfig seeds ConnectionParameters fields a caller left zero.
type DefaultsConfig struct {
	Timeout              time.Duration      `mapstructure:"timeout"`
	MaxRetries           int                `mapstructure:"max_retries"`
	InitialRetryDelay    time.Duration      `mapstructure:"initial_retry_delay"`
	KeepaliveInterval    time.Duration      `mapstructure:"keepalive_interval"`
	ChunkSizeBytes       int64              `mapstructure:"chunk_size_bytes"`
	MaxConcurrentUploads int                `mapstructure:"max_concurrent_uploads"`
	SFTPPoolCapacity     int                `mapstructure:"sftp_pool_capacity"`
	StrictCrypto         bool               `mapstructure:"strict_crypto"`
	HostPolicies         []HostPolicyConfig `mapstructure:"host_policies"`
}

// HostPolicyConfig is one entry of a defaults-file host-policy override
// table: a hostname suffix paired with the capability it pre-disables.
type HostPolicyConfig struct {
	Suffix           string `mapstructure:"suffix"`
	CommandsDisabled bool   `mapstructure:"commands_disabled"`
}

// ToHostPolicies converts the decoded defaults-file table into
// transport.HostPolicy entries, or nil if none were configured, so the
// caller can fall through to transport.DefaultHostPolicies().
func (d DefaultsConfig) ToHostPolicies() []transport.HostPolicy {
	if len(d.HostPolicies) == 0 {
		return nil
	}
	policies := make([]transport.HostPolicy, len(d.HostPolicies))
	for i, hp := range d.HostPolicies {
		policies[i] = transport.HostPolicy{Suffix: hp.Suffix, CommandsDisabled: hp.CommandsDisabled}
	}
	return policies
}

// Load reads configuration from the named paths (directories searched for a
// sshvfs.yaml), environment variables prefixed SSHVFS_, and built-in
// defaults. Environment variables override the file, and the file
// overrides the defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("sshvfs")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("SSHVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9108")
	v.SetDefault("defaults.timeout", "300s")
	v.SetDefault("defaults.max_retries", 3)
	v.SetDefault("defaults.initial_retry_delay", "1s")
	v.SetDefault("defaults.keepalive_interval", "60s")
	v.SetDefault("defaults.chunk_size_bytes", 50*1024*1024)
	v.SetDefault("defaults.max_concurrent_uploads", 2)
	v.SetDefault("defaults.sftp_pool_capacity", 1)
	v.SetDefault("defaults.strict_crypto", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(c *mapstructure.DecoderConfig) {
		c.TagName = "mapstructure"
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
