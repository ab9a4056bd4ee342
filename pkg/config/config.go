// Package config provides a reusable loader for XMBL node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"github.com/spf13/viper"

	"xmbl-ledger/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an XMBL node: network.*,
// ledger.*, stateMachine.*, consensus.*, storage.*, rateLimit.*, logging.*.
type Config struct {
	Network struct {
		Port      uint16   `mapstructure:"port" json:"port"`
		Bootstrap []string `mapstructure:"bootstrap" json:"bootstrap"`
	} `mapstructure:"network" json:"network"`

	Ledger struct {
		DBPath string `mapstructure:"dbPath" json:"dbPath"`
	} `mapstructure:"ledger" json:"ledger"`

	StateMachine struct {
		TotalShards uint32 `mapstructure:"totalShards" json:"totalShards"`
	} `mapstructure:"stateMachine" json:"stateMachine"`

	Consensus struct {
		RequiredValidations uint32 `mapstructure:"requiredValidations" json:"requiredValidations"`
		RawTTLMillis        uint64 `mapstructure:"rawTTL" json:"rawTTL"`
		ProcessingTTLMillis uint64 `mapstructure:"processingTTL" json:"processingTTL"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		Capacity uint64 `mapstructure:"capacity" json:"capacity"`
	} `mapstructure:"storage" json:"storage"`

	RateLimit struct {
		MaxRequests int   `mapstructure:"maxRequests" json:"maxRequests"`
		WindowMS    int64 `mapstructure:"windowMs" json:"windowMs"`
	} `mapstructure:"rateLimit" json:"rateLimit"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// Defaults returns a Config populated with the standard node defaults:
// 4 shards, 3 required validations, 60s raw TTL, 300s processing TTL.
func Defaults() Config {
	var c Config
	c.StateMachine.TotalShards = 4
	c.Consensus.RequiredValidations = 3
	c.Consensus.RawTTLMillis = 60_000
	c.Consensus.ProcessingTTLMillis = 300_000
	c.Logging.Level = "info"
	return c
}

// Load reads configuration files rooted at configDir and merges any
// environment-specific overrides (configDir/<env>.yaml) on top of
// configDir/default.yaml, then layers automatic environment variable
// overrides. The result starts from Defaults(), so fields absent from the
// files and environment keep their default values.
func Load(configDir, env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("default")
	v.AddConfigPath(configDir)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrapf(err, "merge %s config", env)
		}
	}

	v.AutomaticEnv()

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the XMBL_ENV environment variable to
// select the overlay file, rooted at configDir.
func LoadFromEnv(configDir string) (*Config, error) {
	return Load(configDir, utils.EnvOrDefault("XMBL_ENV", ""))
}
