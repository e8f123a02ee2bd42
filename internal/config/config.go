package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FLEET_REPORT_INPUT_TRIPS.
const EnvPrefix = "FLEET_REPORT"

// Config is the full application configuration
type Config struct {
	Input  InputConfig  `mapstructure:"input"`
	Output OutputConfig `mapstructure:"output"`
	Server ServerConfig `mapstructure:"server"`
	Report ReportConfig `mapstructure:"report"`
	Log    LogConfig    `mapstructure:"log"`
}

// InputConfig names the trip table and telemetry archive
type InputConfig struct {
	Trips   string `mapstructure:"trips"`
	Archive string `mapstructure:"archive"`
}

// OutputConfig names the report file
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ReportConfig tunes report builds
type ReportConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig selects the log level and output format ("console" or "json")
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance carrying the defaults, config file search
// paths and environment bindings. Callers may bind flags on it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fleet-report")

	v.SetDefault("input.trips", "Trip-Info.csv")
	v.SetDefault("input.archive", "NU-raw-location-dump.zip")
	v.SetDefault("output.path", "asset_report.csv")
	v.SetDefault("server.listen", ":8000")
	v.SetDefault("report.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration into a Config. When file is empty the search
// paths are tried and a missing config file is not an error; an explicit
// file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
