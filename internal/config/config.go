// Package config loads orgadmin settings.
//
// Precedence is flags > environment (ORGADMIN_ prefix, dots become
// underscores: ORGADMIN_DATABASE_PATH) > config file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultDatabasePath = "orgadmin.db"
	DefaultLogLevel     = "info"
	DefaultProposer     = "元培学院"
	EnvPrefix           = "ORGADMIN"
)

// Config holds every setting the commands read.
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Points   PointsConfig
	Admin    AdminConfig

	// Models is a CUE file with entity definitions. Empty uses the
	// built-in models.
	Models string
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// LogConfig controls logging.
type LogConfig struct {
	Level string
	// File receives a rotated copy of the log when set.
	File string
}

// PointsConfig configures distributions.
type PointsConfig struct {
	// Proposer is the organization that pays for distributions.
	Proposer string
}

// AdminConfig configures the bulk actions.
type AdminConfig struct {
	// AcademicYear is the year refresh extends positions into. 0 leaves
	// refresh disabled.
	AcademicYear int
}

// New returns a viper instance with defaults and environment binding.
// Commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("points.proposer", DefaultProposer)
	v.SetDefault("admin.academic_year", 0)
	v.SetDefault("models", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configPath, if given, into v and returns the validated
// settings.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Points: PointsConfig{Proposer: v.GetString("points.proposer")},
		Admin:  AdminConfig{AcademicYear: v.GetInt("admin.academic_year")},
		Models: v.GetString("models"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if cfg.Points.Proposer == "" {
		return fmt.Errorf("points.proposer must not be empty")
	}
	if cfg.Admin.AcademicYear < 0 {
		return fmt.Errorf("admin.academic_year must not be negative")
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
