package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"pixopt/imagetype"
	"pixopt/models"
	"pixopt/patterns"
)

// ErrInvalidConfig is returned when the image configuration is unusable.
var ErrInvalidConfig = zerr.New("invalid image configuration")

// ImageConfig is the image optimizer configuration, usually read from
// pixopt.yaml.
type ImageConfig struct {
	DeviceSizes    []int                  `yaml:"deviceSizes"`
	ImageSizes     []int                  `yaml:"imageSizes"`
	RemotePatterns []models.RemotePattern `yaml:"remotePatterns"`
	// LocalPatterns is nil when the key is absent, which allows every
	// local image.
	LocalPatterns []models.LocalPattern `yaml:"localPatterns"`
	Formats       []string              `yaml:"formats"`
	Path          string                `yaml:"path"`
	Unoptimized   bool                  `yaml:"unoptimized"`
	Dev           bool                  `yaml:"dangerouslyAllowDev"`

	// Parsed for compatibility with existing configuration files, not used.
	MinimumCacheTTL int      `yaml:"minimumCacheTTL"`
	Domains         []string `yaml:"domains"`

	Mirrors []models.MirrorSpec `yaml:"mirrors"`
	// FetchRateLimit caps upstream fetches per second. 0 disables the limit.
	FetchRateLimit float64 `yaml:"fetchRateLimit"`
}

// DefaultImageConfig returns the built-in configuration used when no file
// is present.
func DefaultImageConfig() *ImageConfig {
	return &ImageConfig{
		DeviceSizes: []int{640, 750, 828, 1080, 1200, 1920, 2048, 3840},
		ImageSizes:  []int{16, 32, 48, 64, 96, 128, 256, 384},
		Formats:     []string{imagetype.WEBP},
		Path:        "/api/image",
	}
}

// AllSizes returns deviceSizes followed by imageSizes.
func (c *ImageConfig) AllSizes() []int {
	sizes := make([]int, 0, len(c.DeviceSizes)+len(c.ImageSizes))
	sizes = append(sizes, c.DeviceSizes...)
	return append(sizes, c.ImageSizes...)
}

// Validate fails fast on configuration errors so they never surface per
// request.
func (c *ImageConfig) Validate() error {
	for _, p := range c.RemotePatterns {
		if err := patterns.Validate(p); err != nil {
			return zerr.Wrap(err, "remotePatterns")
		}
	}
	for _, s := range c.AllSizes() {
		if s <= 0 {
			return zerr.With(zerr.Wrap(ErrInvalidConfig, "sizes must be positive"), "size", s)
		}
	}
	if len(c.DeviceSizes) == 0 {
		return zerr.Wrap(ErrInvalidConfig, "deviceSizes must not be empty")
	}
	supported := []string{imagetype.WEBP, imagetype.AVIF, imagetype.PNG, imagetype.JPEG}
	for _, f := range c.Formats {
		if !slices.Contains(supported, f) {
			return zerr.With(zerr.Wrap(ErrInvalidConfig, "unsupported output format"), "format", f)
		}
	}
	for _, m := range c.Mirrors {
		if m.Type == "" {
			return zerr.Wrap(ErrInvalidConfig, "mirror type is required")
		}
	}
	if c.FetchRateLimit < 0 {
		return zerr.Wrap(ErrInvalidConfig, "fetchRateLimit must not be negative")
	}
	return nil
}

// Matcher compiles the configured allow-lists.
func (c *ImageConfig) Matcher() (*patterns.Matcher, error) {
	return patterns.NewMatcher(c.RemotePatterns, c.LocalPatterns)
}

// LoadImageConfig reads the YAML configuration at path. A missing file
// yields the defaults; a present but invalid file is an error.
func LoadImageConfig(path string) (*ImageConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultImageConfig()
			return cfg, cfg.Validate()
		}
		return nil, zerr.Wrap(err, "failed to read config file")
	}

	cfg := DefaultImageConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, zerr.Wrap(err, "failed to parse config file")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultImageConfig().Path
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return cfg, nil
}
