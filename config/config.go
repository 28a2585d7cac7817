// Package config loads application configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keystone/broking-engine/commission"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Settlement SettlementConfig `yaml:"settlement" mapstructure:"settlement"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ComplianceConfig tunes alert severity classification.
type ComplianceConfig struct {
	// HighExcessThreshold is the excess (in rate points) that anchors
	// severity classification; ExcessMultiple scales it.
	HighExcessThreshold string `yaml:"high_excess_threshold" mapstructure:"high_excess_threshold"`
	ExcessMultiple      string `yaml:"excess_multiple" mapstructure:"excess_multiple"`
}

// SettlementConfig tunes reconciliation.
type SettlementConfig struct {
	// VarianceTolerance is a fraction of the expected amount (0.005 = 0.5%).
	VarianceTolerance string `yaml:"variance_tolerance" mapstructure:"variance_tolerance"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from broking.yaml (optional) and BROKING_*
// environment variables, with defaults for local development.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("broking")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.broking")
	}

	v.SetEnvPrefix("BROKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("store.path", "broking.db")
	v.SetDefault("compliance.high_excess_threshold", "1")
	v.SetDefault("compliance.excess_multiple", "2")
	v.SetDefault("settlement.variance_tolerance", "0.005")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// GuardConfig converts the compliance settings into engine configuration,
// falling back to engine defaults on malformed values.
func (c ComplianceConfig) GuardConfig() commission.GuardConfig {
	out := commission.DefaultGuardConfig()
	if d, err := decimal.NewFromString(c.HighExcessThreshold); err == nil && d.IsPositive() {
		out.HighExcessThreshold = d
	}
	if d, err := decimal.NewFromString(c.ExcessMultiple); err == nil && d.IsPositive() {
		out.ExcessMultiple = d
	}
	return out
}

// Tolerance converts the settlement setting into a decimal fraction,
// falling back to the engine default on malformed values.
func (c SettlementConfig) Tolerance() decimal.Decimal {
	if d, err := decimal.NewFromString(c.VarianceTolerance); err == nil && !d.IsNegative() {
		return d
	}
	return commission.DefaultTolerance
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
