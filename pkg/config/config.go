// Package config loads the harness configuration. Everything can come
// from the environment (the CI runner injects secrets that way), with an
// optional YAML file for the non-secret knobs. The loaded Config is
// immutable: components receive it by reference and never re-read the
// process environment themselves.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Restart policy names accepted in configuration
const (
	PolicyImmediate   = "immediate"
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// Config is the harness's full configuration
type Config struct {
	// StoreURI is the dependency endpoint the worker needs. Bound to
	// BOTKEEPER_STORE_URI and, for compatibility with the existing bot
	// deployment, MONGO_URI.
	StoreURI         string        `mapstructure:"store_uri" json:"store_uri" yaml:"store_uri"`
	PreflightTimeout time.Duration `mapstructure:"preflight_timeout" json:"preflight_timeout" yaml:"preflight_timeout"`
	GracePeriod      time.Duration `mapstructure:"grace_period" json:"grace_period" yaml:"grace_period"`

	Worker  Worker  `mapstructure:"worker" json:"worker" yaml:"worker"`
	Restart Restart `mapstructure:"restart" json:"restart" yaml:"restart"`
	Metrics Metrics `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Log     Log     `mapstructure:"log" json:"log" yaml:"log"`
}

// Worker describes the supervised executable
type Worker struct {
	Command string            `mapstructure:"command" json:"command" yaml:"command"`
	Args    []string          `mapstructure:"args" json:"args,omitempty" yaml:"args,omitempty"`
	Dir     string            `mapstructure:"dir" json:"dir,omitempty" yaml:"dir,omitempty"`
	Env     map[string]string `mapstructure:"env" json:"env,omitempty" yaml:"env,omitempty"`
}

// Restart selects the delay policy between worker invocations
type Restart struct {
	Policy       string        `mapstructure:"policy" json:"policy" yaml:"policy"`
	Delay        time.Duration `mapstructure:"delay" json:"delay" yaml:"delay"`
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`
	ResetAfter   time.Duration `mapstructure:"reset_after" json:"reset_after" yaml:"reset_after"`
}

// Metrics configures the optional observability endpoint
type Metrics struct {
	Enabled        bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
	SampleInterval time.Duration `mapstructure:"sample_interval" json:"sample_interval" yaml:"sample_interval"`
}

// Log configures harness logging
type Log struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default (or an explicit BindEnv) for viper to
	// surface an environment-only value through Unmarshal
	v.SetDefault("worker.command", "")
	v.SetDefault("worker.dir", "")
	v.SetDefault("preflight_timeout", 5*time.Second)
	v.SetDefault("grace_period", 10*time.Second)
	v.SetDefault("restart.policy", PolicyImmediate)
	v.SetDefault("restart.delay", 5*time.Second)
	v.SetDefault("restart.initial_delay", 500*time.Millisecond)
	v.SetDefault("restart.max_delay", 30*time.Second)
	v.SetDefault("restart.reset_after", time.Minute)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.sample_interval", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads configuration from file (optional) and environment.
// cfgFile may be empty; the default search path is then used.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("botkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.botkeeper")
		v.AddConfigPath("/etc/botkeeper")
	}

	v.SetEnvPrefix("BOTKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// MONGO_URI is what the bot deployment has always exported
	if err := v.BindEnv("store_uri", "BOTKEEPER_STORE_URI", "MONGO_URI"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Restart.Policy {
	case PolicyImmediate, PolicyFixed, PolicyExponential:
	default:
		return fmt.Errorf("unknown restart policy %q (want %s, %s or %s)",
			c.Restart.Policy, PolicyImmediate, PolicyFixed, PolicyExponential)
	}

	if c.PreflightTimeout <= 0 {
		return fmt.Errorf("preflight_timeout must be positive, got %s", c.PreflightTimeout)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %s", c.GracePeriod)
	}

	return nil
}

// ValidateWorker checks that a worker command is configured; `run` needs
// it, `check` does not
func (c *Config) ValidateWorker() error {
	if strings.TrimSpace(c.Worker.Command) == "" {
		return fmt.Errorf("no worker command configured (set worker.command or pass one after --)")
	}
	return nil
}
