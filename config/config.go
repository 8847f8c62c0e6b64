// Package config loads the server configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. LEXTALE_SERVER_PORT
const EnvPrefix = "LEXTALE"

// Config is the top-level configuration structure
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Timing     TimingConfig     `mapstructure:"timing"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Results    ResultsConfig    `mapstructure:"results"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AssetsDir       string        `mapstructure:"assets_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the participant token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DatabaseConfig holds MongoDB settings. An empty URI keeps sessions in memory.
type DatabaseConfig struct {
	MongoURI       string        `mapstructure:"mongodb_uri"`
	Name           string        `mapstructure:"name"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds settings for the logger
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ExperimentConfig locates the stimulus table, the assets and the variants
type ExperimentConfig struct {
	StimuliPath       string `mapstructure:"stimuli_path"`
	SortByOrder       bool   `mapstructure:"sort_by_order"`
	ToneAsset         string `mapstructure:"tone_asset"`
	InstructionsAsset string `mapstructure:"instructions_asset"`
	VariantsFile      string `mapstructure:"variants_file"`
}

// TimingConfig bounds the waits inside a session. Zero response timeout
// waits for the participant indefinitely.
type TimingConfig struct {
	PlaybackTimeout     time.Duration `mapstructure:"playback_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	PreloadTimeout      time.Duration `mapstructure:"preload_timeout"`
	CalibrationAttempts int           `mapstructure:"calibration_attempts"`
}

// SessionsConfig controls session lifetime and cleanup
type SessionsConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ResultsConfig holds where submitted results are written
type ResultsConfig struct {
	Directory string `mapstructure:"directory"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.assets_dir", "assets")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 2*time.Hour)

	v.SetDefault("database.mongodb_uri", "")
	v.SetDefault("database.name", "lextale")
	v.SetDefault("database.max_pool_size", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)

	v.SetDefault("experiment.stimuli_path", "assets/stimuli.csv")
	v.SetDefault("experiment.sort_by_order", false)
	v.SetDefault("experiment.tone_asset", "calibration.wav")
	v.SetDefault("experiment.instructions_asset", "instructions.html")
	v.SetDefault("experiment.variants_file", "")

	v.SetDefault("timing.playback_timeout", 10*time.Second)
	v.SetDefault("timing.response_timeout", 0)
	v.SetDefault("timing.preload_timeout", 2*time.Minute)
	v.SetDefault("timing.calibration_attempts", 3)

	v.SetDefault("sessions.ttl", 2*time.Hour)
	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("sessions.cleanup_interval", 5*time.Minute)

	v.SetDefault("results.directory", "results")
}

// Load reads .env, then config/config.yaml under projectRoot, then
// LEXTALE_* environment variables. A missing file is not an error.
func Load(projectRoot string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if cfg.Experiment.VariantsFile != "" && !filepath.IsAbs(cfg.Experiment.VariantsFile) {
		cfg.Experiment.VariantsFile = filepath.Join(projectRoot, cfg.Experiment.VariantsFile)
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Experiment.StimuliPath == "" {
		return fmt.Errorf("experiment.stimuli_path is required")
	}
	if c.Timing.PlaybackTimeout <= 0 {
		return fmt.Errorf("timing.playback_timeout must be positive")
	}
	if c.Timing.ResponseTimeout < 0 {
		return fmt.Errorf("timing.response_timeout cannot be negative")
	}
	if c.Timing.CalibrationAttempts < 1 {
		return fmt.Errorf("timing.calibration_attempts must be at least 1")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	return nil
}
