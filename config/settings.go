package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Settings struct {
	Port               string `mapstructure:"port"`
	GoEnv              string `mapstructure:"go_env"`
	CorsAllowedOrigins string `mapstructure:"cors_allowed_origins"`

	Catalog struct {
		BaseURL         string `mapstructure:"base_url"`
		Transport       string `mapstructure:"transport"`
		Topic           string `mapstructure:"topic"`
		CreateTopic     bool   `mapstructure:"create_topic"`
		Workers         int    `mapstructure:"workers"`
		QueueSize       int    `mapstructure:"queue_size"`
		RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
	} `mapstructure:"catalog"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Otel struct {
		Enabled     bool   `mapstructure:"enabled"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"otel"`

	Export struct {
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"export"`
}

var (
	settings   Settings
	settingsMu sync.RWMutex
)

func GetSettings() Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// LoadSettings reads an optional YAML file at path and overlays environment variables
// (catalog.base_url <- CATALOG_BASE_URL or MARESTO_URL, and so on).
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("go_env", "development")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.transport", "local")
	v.SetDefault("catalog.topic", "catalog-sync")
	v.SetDefault("catalog.create_topic", false)
	v.SetDefault("catalog.workers", 2)
	v.SetDefault("catalog.queue_size", 64)
	v.SetDefault("catalog.rate_limit_per_min", 60)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "inventory-backend")
	v.SetDefault("export.bucket", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("catalog.base_url", "CATALOG_BASE_URL", "MARESTO_URL")
	_ = v.BindEnv("export.bucket", "EXPORT_BUCKET", "GCS_BUCKET")

	var s Settings
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return s, err
			}
		}
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, err
	}

	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()
	return s, nil
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.GoEnv), "production")
}
