// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/mapsync/internal/engine"
)

// Config holds the full application configuration.
type Config struct {
	Engine engine.Config `yaml:"engine" mapstructure:"engine"`
	View   ViewConfig    `yaml:"view" mapstructure:"view"`
	Source SourceConfig  `yaml:"source" mapstructure:"source"`
	Server ServerConfig  `yaml:"server" mapstructure:"server"`
	Log    LogConfig     `yaml:"log" mapstructure:"log"`
}

// ViewConfig configures the in-process camera's initial view state.
type ViewConfig struct {
	CenterLng      float64 `yaml:"center_lng" mapstructure:"center_lng"`
	CenterLat      float64 `yaml:"center_lat" mapstructure:"center_lat"`
	Zoom           float64 `yaml:"zoom" mapstructure:"zoom"`
	ViewportWidth  float64 `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight float64 `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// SourceConfig configures where features are loaded from.
type SourceConfig struct {
	// Driver is one of geojson, shapefile, sqlite.
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the preview HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// RateLimit caps API requests per second (burst 2x).
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("source.driver", "geojson")
	v.SetDefault("view.zoom", 2)
	v.SetDefault("view.viewport_width", 1280)
	v.SetDefault("view.viewport_height", 800)
	v.SetDefault("engine.cluster_threshold_px", 60)
	v.SetDefault("engine.min_zoom", 5)
	v.SetDefault("engine.min_zoom_narrow", 6)
	v.SetDefault("engine.narrow_viewport_px", 768)
	v.SetDefault("engine.padding_fraction", 0.1)
	v.SetDefault("engine.max_fit_zoom", 14)
	v.SetDefault("engine.focus_zoom", 12)
	v.SetDefault("engine.move_duration", "600ms")
	v.SetDefault("engine.settle_delay", "150ms")
	v.SetDefault("engine.debounce_window", "200ms")
	v.SetDefault("engine.fade_grace", "400ms")
	v.SetDefault("engine.poll_interval", "2s")
	v.SetDefault("engine.default_zoom", 2)
	v.SetDefault("engine.gate.gesture_ttl", "500ms")
	v.SetDefault("engine.gate.reframe_ttl", "1500ms")
	v.SetDefault("engine.gate.navigation_ttl", "2500ms")
	v.SetDefault("engine.gate.filter_ttl", "2500ms")
	v.SetDefault("engine.retry.max_attempts", 8)
	v.SetDefault("engine.retry.interval", "250ms")

	// Read config file (optional)
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
