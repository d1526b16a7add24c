package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-loader/engine/core"
)

type LoaderConfig struct {
	// Worker goroutines. 0 picks one less than the CPU count.
	Workers int `toml:"workers"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	// Address the /metrics endpoint listens on.
	Listen string `toml:"listen"`
}

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Root directory every asset path is relative to.
	AssetBasePath string `toml:"asset_base_path"`
	// Reload assets when they change on disk.
	WatchAssets bool `toml:"watch_assets"`
	// Milliseconds between ticks of the owning loop.
	TickMs  int           `toml:"tick_ms"`
	Loader  LoaderConfig  `toml:"loader"`
	Metrics MetricsConfig `toml:"metrics"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:          "Anima Loader",
		LogLevel:      core.InfoLevel.String(),
		AssetBasePath: "assets",
		TickMs:        16,
		Metrics: MetricsConfig{
			Listen: ":9102",
		},
	}
}

/**
 * @brief Reads a TOML configuration file on top of the defaults.
 * @param path The file to read. Unknown keys are rejected.
 */
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := DefaultApplicationConfig()
	decoder := toml.NewDecoder(f)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s: %s", core.ErrInvalidConfig, path, strict.String())
		}
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidConfig, path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate fills zero values with defaults and rejects values that cannot work.
func (c *ApplicationConfig) Validate() error {
	defaults := DefaultApplicationConfig()
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.TickMs == 0 {
		c.TickMs = defaults.TickMs
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = defaults.Metrics.Listen
	}

	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidConfig, err)
	}
	if c.TickMs < 0 {
		return fmt.Errorf("%w: tick_ms must be positive, got %d", core.ErrInvalidConfig, c.TickMs)
	}
	if c.Loader.Workers < 0 {
		return fmt.Errorf("%w: loader.workers must not be negative, got %d", core.ErrInvalidConfig, c.Loader.Workers)
	}
	if c.WatchAssets && c.AssetBasePath == "" {
		return fmt.Errorf("%w: watch_assets needs asset_base_path", core.ErrInvalidConfig)
	}
	return nil
}

func (c *ApplicationConfig) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}
