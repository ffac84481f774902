package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Bounds for the number of characters stripped from roster course codes.
const (
	MinRosterPrefixSkip     = 0
	MaxRosterPrefixSkip     = 10
	DefaultRosterPrefixSkip = 7
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Data    DataConfig
	Roster  RosterConfig
	CORS    CORSConfig
	Log     LogConfig
	Metrics MetricsConfig
	Exports ExportsConfig
}

// DataConfig locates the attendance document.
type DataConfig struct {
	Dir  string
	File string
}

// Path returns the absolute location of the attendance document.
func (d DataConfig) Path() string {
	return filepath.Join(d.Dir, d.File)
}

// RosterConfig tunes roster import.
type RosterConfig struct {
	PrefixSkip int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// ExportsConfig controls signed download links for generated exports.
type ExportsConfig struct {
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Data = DataConfig{
		Dir:  expandHome(v.GetString("DATA_DIR")),
		File: v.GetString("DATA_FILE"),
	}

	cfg.Roster = RosterConfig{PrefixSkip: v.GetInt("ROSTER_PREFIX_SKIP")}
	if cfg.Roster.PrefixSkip < MinRosterPrefixSkip || cfg.Roster.PrefixSkip > MaxRosterPrefixSkip {
		return nil, fmt.Errorf("ROSTER_PREFIX_SKIP must be between %d and %d, got %d", MinRosterPrefixSkip, MaxRosterPrefixSkip, cfg.Roster.PrefixSkip)
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Exports = ExportsConfig{
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATA_DIR", filepath.Join("~", "Desktop", "DataAT2"))
	v.SetDefault("DATA_FILE", "attendance_log.json")
	v.SetDefault("ROSTER_PREFIX_SKIP", DefaultRosterPrefixSkip)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "30m")
}

// expandHome resolves a leading "~" against the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], string(filepath.Separator)))
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
