// Package config loads the server and session tuning from a YAML file
// and CLASSBOARD_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
)

// ServerConfig defines the HTTP server configuration.
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	StaticDir     string        `mapstructure:"static_dir"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// TransportConfig selects how clients reach each other: "memory" for a
// single process, "redis" for pub/sub fan-out, "relay" for the built-in
// websocket hub.
type TransportConfig struct {
	Mode      string  `mapstructure:"mode"`
	RedisAddr string  `mapstructure:"redis_addr"`
	RelayURL  string  `mapstructure:"relay_url"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// SessionConfig holds the classroom-facing knobs.
type SessionConfig struct {
	CanvasWidth      float64       `mapstructure:"canvas_width"`
	CanvasHeight     float64       `mapstructure:"canvas_height"`
	EraserPad        float64       `mapstructure:"eraser_pad"`
	EraserStep       float64       `mapstructure:"eraser_step"`
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	FragmentInterval time.Duration `mapstructure:"fragment_interval"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	LogCapacity      int           `mapstructure:"log_capacity"`
	QueueCapacity    int           `mapstructure:"queue_capacity"`
	ImageCacheSize   int           `mapstructure:"image_cache_size"`
}

// RenderConfig holds the pressure-to-width tuning.
type RenderConfig struct {
	PressureOffset  float64 `mapstructure:"pressure_offset"`
	MinWidthScale   float64 `mapstructure:"min_width_scale"`
	MaxWidthScale   float64 `mapstructure:"max_width_scale"`
	MinSegmentWidth float64 `mapstructure:"min_segment_width"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete application configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Transport   TransportConfig `mapstructure:"transport"`
	Session     SessionConfig   `mapstructure:"session"`
	Render      RenderConfig    `mapstructure:"render"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// Load reads configuration from file and environment variables. The file
// path comes from CLASSBOARD_CONFIG_FILE, defaulting to
// configs/config.yaml; a missing file is fine, defaults and environment
// variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("CLASSBOARD_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("CLASSBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("transport.redis_addr", "REDIS_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.static_dir", "web/static")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)

	v.SetDefault("transport.mode", "relay")
	v.SetDefault("transport.redis_addr", "localhost:6379")
	v.SetDefault("transport.relay_url", "ws://localhost:8080/ws")
	v.SetDefault("transport.rate_limit", 120)
	v.SetDefault("transport.rate_burst", 240)

	v.SetDefault("session.canvas_width", 800)
	v.SetDefault("session.canvas_height", 600)
	v.SetDefault("session.eraser_pad", 10)
	v.SetDefault("session.eraser_step", 4)
	v.SetDefault("session.sync_interval", 4*time.Second)
	v.SetDefault("session.flush_interval", 80*time.Millisecond)
	v.SetDefault("session.fragment_interval", 80*time.Millisecond)
	v.SetDefault("session.reconnect_delay", 2*time.Second)
	v.SetDefault("session.log_capacity", 64)
	v.SetDefault("session.queue_capacity", 128)
	v.SetDefault("session.image_cache_size", 32)

	v.SetDefault("render.pressure_offset", 0.05)
	v.SetDefault("render.min_width_scale", 0.35)
	v.SetDefault("render.max_width_scale", 1.6)
	v.SetDefault("render.min_segment_width", 0.75)

	v.SetDefault("logging.level", "info")
}

// IsProduction returns true if the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// DrawingParams converts the session section into canvas parameters.
func (c *Config) DrawingParams() drawing.Params {
	return drawing.Params{
		CanvasWidth:  c.Session.CanvasWidth,
		CanvasHeight: c.Session.CanvasHeight,
		EraserPad:    c.Session.EraserPad,
		EraserStep:   c.Session.EraserStep,
	}
}

// RenderParams converts the render section into stroke tuning.
func (c *Config) RenderParams() geometry.RenderParams {
	return geometry.RenderParams{
		PressureOffset:  c.Render.PressureOffset,
		MinWidthScale:   c.Render.MinWidthScale,
		MaxWidthScale:   c.Render.MaxWidthScale,
		MinSegmentWidth: c.Render.MinSegmentWidth,
	}
}
