package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/andresmejia3/facedetector/internal/detect"
	"github.com/andresmejia3/facedetector/internal/protocol"
	"github.com/andresmejia3/facedetector/internal/storage"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detection DetectionConfig `yaml:"detection"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains listener and worker settings
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	Workers          int           `yaml:"workers"`
	Backlog          int           `yaml:"backlog"`            // pending connections before accept blocks
	ReadTimeout      time.Duration `yaml:"read_timeout"`       // 0 disables
	WriteTimeout     time.Duration `yaml:"write_timeout"`      // 0 disables
	MaxNameLength    uint32        `yaml:"max_name_length"`
	MaxPayloadLength uint64        `yaml:"max_payload_length"` // bytes
}

// DetectionConfig contains cascade settings
type DetectionConfig struct {
	CascadeDir       string  `yaml:"cascade_dir"` // directory with the stock haarcascade_*.xml files
	ScaleFactor      float64 `yaml:"scale_factor"`
	MinNeighbors     int     `yaml:"min_neighbors"`
	MinSize          int     `yaml:"min_size"` // square side in pixels
	OverlapThreshold float64 `yaml:"overlap_threshold"`
}

// StorageConfig contains the on-disk layout
type StorageConfig struct {
	Root      string `yaml:"root"`
	Namespace string `yaml:"namespace"` // session, shared
}

// DatabaseConfig enables the optional audit log
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LogConfig controls server logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	p := detect.DefaultParams()
	lim := protocol.DefaultLimits()
	return &Config{
		Server: ServerConfig{
			Addr:             "0.0.0.0:5000",
			Workers:          runtime.NumCPU(),
			Backlog:          5,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     60 * time.Second,
			MaxNameLength:    lim.MaxNameLength,
			MaxPayloadLength: lim.MaxPayloadLength,
		},
		Detection: DetectionConfig{
			CascadeDir:       detect.DefaultCascadeDir,
			ScaleFactor:      p.ScaleFactor,
			MinNeighbors:     p.MinNeighbors,
			MinSize:          p.MinSize.X,
			OverlapThreshold: detect.DefaultOverlapThreshold,
		},
		Storage: StorageConfig{
			Root:      "images",
			Namespace: string(storage.NamespaceSession),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []error

	s := cfg.Server
	if s.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", s.Workers))
	}
	if s.Backlog < 0 {
		errs = append(errs, fmt.Errorf("server.backlog cannot be negative, got %d", s.Backlog))
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts cannot be negative"))
	}
	if s.MaxNameLength == 0 {
		errs = append(errs, errors.New("server.max_name_length must be positive"))
	}
	if s.MaxPayloadLength == 0 {
		errs = append(errs, errors.New("server.max_payload_length must be positive"))
	}

	d := cfg.Detection
	if d.CascadeDir == "" {
		errs = append(errs, errors.New("detection.cascade_dir is required"))
	}
	if d.ScaleFactor <= 1.0 {
		errs = append(errs, fmt.Errorf("detection.scale_factor must be greater than 1.0, got %.2f", d.ScaleFactor))
	}
	if d.MinNeighbors < 0 {
		errs = append(errs, fmt.Errorf("detection.min_neighbors cannot be negative, got %d", d.MinNeighbors))
	}
	if d.MinSize < 0 {
		errs = append(errs, fmt.Errorf("detection.min_size cannot be negative, got %d", d.MinSize))
	}
	if d.OverlapThreshold <= 0 || d.OverlapThreshold > 1 {
		errs = append(errs, fmt.Errorf("detection.overlap_threshold must be in (0, 1], got %.2f", d.OverlapThreshold))
	}

	if cfg.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}
	switch storage.Namespace(cfg.Storage.Namespace) {
	case storage.NamespaceSession, storage.NamespaceShared, "":
	default:
		errs = append(errs, fmt.Errorf("storage.namespace must be %q or %q, got %q",
			storage.NamespaceSession, storage.NamespaceShared, cfg.Storage.Namespace))
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

// Params returns the cascade parameters described by the detection section.
func (d DetectionConfig) Params() detect.Params {
	p := detect.DefaultParams()
	p.ScaleFactor = d.ScaleFactor
	p.MinNeighbors = d.MinNeighbors
	p.MinSize.X, p.MinSize.Y = d.MinSize, d.MinSize
	return p
}

// Limits returns the frame limits described by the server section.
func (s ServerConfig) Limits() protocol.Limits {
	return protocol.Limits{MaxNameLength: s.MaxNameLength, MaxPayloadLength: s.MaxPayloadLength}
}
