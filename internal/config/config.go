package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the solar imager
type Config struct {
	// Server configuration
	Port string `env:"PORT,default=8981"`

	// Local filesystem layout
	DataDir       string `env:"DATA_DIR,default=./data"`
	VideoDir      string `env:"VIDEO_DIR,default=./video"`
	TempVideosDir string `env:"TEMP_VIDEOS_DIR,default=./temp_videos"`
	ChartsDir     string `env:"CHARTS_DIR,default=./charts"`
	JobsDB        string `env:"JOBS_DB,default=./jobs.db"`

	// Download workflow
	ImageSource     string        `env:"IMAGE_SOURCE,default=sdo"`
	Resolution      int           `env:"RESOLUTION,default=1024"`
	DefaultFilter   string        `env:"DEFAULT_FILTER,default=0211"`
	CompositeMode   string        `env:"COMPOSITE_MODE,default=separate"`
	PreferredTime   string        `env:"PREFERRED_TIME,default=12:00:00"`
	MinFileBytes    int64         `env:"MIN_FILE_BYTES,default=1024"`
	RateLimitDelay  time.Duration `env:"RATE_LIMIT_DELAY,default=1s"`
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL,default=5m"`

	// Upstream endpoints
	SDOBrowseURL     string `env:"SDO_BROWSE_URL,default=https://sdo.gsfc.nasa.gov/assets/img/browse"`
	HelioviewerURL   string `env:"HELIOVIEWER_URL,default=https://api.helioviewer.org/v2"`
	NOAASolarWindURL string `env:"NOAA_SOLAR_WIND_URL,default=https://services.swpc.noaa.gov/products/solar-wind"`

	// Video assembly
	FFmpegPath      string        `env:"FFMPEG_PATH,default=ffmpeg"`
	DefaultFPS      float64       `env:"DEFAULT_FPS,default=10"`
	TempVideoMaxAge time.Duration `env:"TEMP_VIDEO_MAX_AGE,default=1h"`
	LabelFrames     bool          `env:"LABEL_FRAMES,default=true"`

	// Charting
	ChartBackends  string `env:"CHART_BACKENDS,default=png,html"`
	PreferredChart string `env:"PREFERRED_CHART,default=html"`

	// GCP mirror (optional)
	DeploymentMode string `env:"DEPLOYMENT_MODE,default=local"`
	GCSBucket      string `env:"GCS_BUCKET"`

	// Service configuration
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=auto"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// win over it.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return LoadFrom(ctx, nil)
}

// LoadFrom processes configuration with an optional lookuper, mainly for
// tests. A nil lookuper reads the OS environment.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	var err error
	if lookuper == nil {
		err = envconfig.Process(ctx, &cfg)
	} else {
		err = envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Resolution {
	case 1024, 2048, 4096:
	default:
		return fmt.Errorf("invalid RESOLUTION %d: must be 1024, 2048 or 4096", c.Resolution)
	}
	switch c.ImageSource {
	case "sdo", "helioviewer":
	default:
		return fmt.Errorf("invalid IMAGE_SOURCE %q: must be sdo or helioviewer", c.ImageSource)
	}
	switch c.CompositeMode {
	case "separate", "combined":
	default:
		return fmt.Errorf("invalid COMPOSITE_MODE %q: must be separate or combined", c.CompositeMode)
	}
	switch c.DeploymentMode {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when DEPLOYMENT_MODE=gcs")
		}
	default:
		return fmt.Errorf("invalid DEPLOYMENT_MODE %q", c.DeploymentMode)
	}
	if _, err := time.Parse("15:04:05", c.PreferredTime); err != nil {
		return fmt.Errorf("invalid PREFERRED_TIME %q: %w", c.PreferredTime, err)
	}
	if c.MinFileBytes < 0 {
		return fmt.Errorf("MIN_FILE_BYTES must not be negative")
	}
	if c.DefaultFPS <= 0 {
		return fmt.Errorf("DEFAULT_FPS must be positive")
	}
	return nil
}

// PreferredTimeOfDay returns the configured time of day as an offset from
// midnight UTC.
func (c *Config) PreferredTimeOfDay() time.Duration {
	t, err := time.Parse("15:04:05", c.PreferredTime)
	if err != nil {
		return 12 * time.Hour
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

// EnabledChartBackends splits CHART_BACKENDS into backend names.
func (c *Config) EnabledChartBackends() []string {
	var names []string
	for _, name := range strings.Split(c.ChartBackends, ",") {
		if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
			names = append(names, name)
		}
	}
	return names
}
