// Package config loads segtool settings from YAML and turns them into decode
// and encode options.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/cocosip/go-dicom-seg/pixel"
	"github.com/cocosip/go-dicom-seg/seg"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the segtool configuration file
type Config struct {
	Decode struct {
		// Tolerance is the absolute tolerance for orientation and position
		// comparisons
		Tolerance float64 `yaml:"tolerance"`

		// ChunkSize bounds one pixel buffer chunk in bytes
		ChunkSize int `yaml:"chunkSize"`

		// BatchSize is the number of frames per decode step
		BatchSize int `yaml:"batchSize"`

		ContiguousRows bool `yaml:"contiguousRows"`
	} `yaml:"decode"`

	Encode struct {
		RLE               bool   `yaml:"rle"`
		SeriesDescription string `yaml:"seriesDescription"`
		SeriesNumber      int    `yaml:"seriesNumber"`
		ContentLabel      string `yaml:"contentLabel"`
		ContentCreator    string `yaml:"contentCreator"`
		Manufacturer      string `yaml:"manufacturer"`
	} `yaml:"encode"`

	Log struct {
		// Level is a zerolog level name
		Level string `yaml:"level"`

		// JSON switches the console writer off
		JSON bool `yaml:"json"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Decode.Tolerance = geometry.DefaultTolerance
	cfg.Decode.ChunkSize = pixel.DefaultChunkSize
	cfg.Decode.BatchSize = seg.DefaultBatchSize
	cfg.Decode.ContiguousRows = true

	enc := seg.DefaultEncodeOptions()
	cfg.Encode.SeriesDescription = enc.SeriesDescription
	cfg.Encode.SeriesNumber = enc.SeriesNumber
	cfg.Encode.ContentLabel = enc.ContentLabel
	cfg.Encode.ContentCreator = enc.ContentCreator
	cfg.Encode.Manufacturer = enc.Manufacturer

	cfg.Log.Level = zerolog.InfoLevel.String()
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the default configuration; keys absent from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("error parsing config file: log level: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// DecodeOptions returns decode options for the configuration
func (c *Config) DecodeOptions(logger zerolog.Logger) *seg.DecodeOptions {
	return seg.DefaultDecodeOptions().
		WithTolerance(c.Decode.Tolerance).
		WithChunkSize(c.Decode.ChunkSize).
		WithBatchSize(c.Decode.BatchSize).
		WithContiguousRows(c.Decode.ContiguousRows).
		WithLogger(logger)
}

// EncodeOptions returns encode options for the configuration
func (c *Config) EncodeOptions(logger zerolog.Logger) *seg.EncodeOptions {
	opts := seg.DefaultEncodeOptions().
		WithRLE(c.Encode.RLE).
		WithSeriesDescription(c.Encode.SeriesDescription).
		WithSeriesNumber(c.Encode.SeriesNumber).
		WithContentLabel(c.Encode.ContentLabel).
		WithLogger(logger)
	opts.ContentCreator = c.Encode.ContentCreator
	opts.Manufacturer = c.Encode.Manufacturer
	return opts
}

// Logger builds the configured logger writing to w
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if !c.Log.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
