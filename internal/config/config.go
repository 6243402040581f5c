// Package config carries the decode pipeline's configuration. A YAML file can
// seed the struct; command-line flags override individual fields on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tuna-f1sh/cantools/internal/batch"
	"github.com/tuna-f1sh/cantools/internal/parse"
	"github.com/tuna-f1sh/cantools/internal/publish"
)

type Config struct {
	// Input is the capture source: "-" for stdin or a file path.
	Input string `yaml:"input"`
	// Mode selects the line encoding, "live" or "log".
	Mode string `yaml:"mode"`
	// Database is the path to the frame-definition (DBC) file.
	Database string `yaml:"database"`

	// NoDecodeChoices disables choice-label substitution in the console
	// rendering. The publish path always decodes numerically regardless.
	NoDecodeChoices bool `yaml:"no_decode_choices"`
	// SingleLine collapses the console rendering to one line per frame.
	SingleLine bool `yaml:"single_line"`
	// Quiet suppresses the console echo and non-error logging.
	Quiet bool `yaml:"quiet"`
	// NoStrict tolerates database consistency warnings instead of failing.
	NoStrict bool `yaml:"no_strict"`

	// FrameIDs is an optional frame-id allow-list, hex ("0x1F0") or decimal.
	FrameIDs []string `yaml:"frame_ids"`
	// Names is an optional message-name allow-list for the publish path.
	Names []string `yaml:"names"`
	// FrameIDMask limits which id bits must match during database lookup.
	// Empty means ids must be equal.
	FrameIDMask string `yaml:"frame_id_mask"`

	// BatchSize is the number of points per sink write.
	BatchSize int `yaml:"batch_size"`
	// QueueDepth is how many batches may wait for the publisher.
	QueueDepth int `yaml:"queue_depth"`

	Influx  InfluxConfig  `yaml:"influxdb"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// InfluxConfig holds the sink connection parameters. An empty Database leaves
// publishing disabled and the pipeline echo-only.
type InfluxConfig struct {
	Database           string `yaml:"database"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLS                bool   `yaml:"tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	PathPrefix         string `yaml:"path_prefix"`
}

type MetricsConfig struct {
	// Addr exposes Prometheus metrics when non-empty, e.g. ":9100".
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML config file as-is, without defaults or validation, so
// callers can layer overrides on top before validating.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a YAML config file and applies defaults and validation.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Input == "" {
		c.Input = "-"
	}
	if c.Mode == "" {
		c.Mode = string(parse.ModeLive)
	}
	if c.BatchSize == 0 {
		c.BatchSize = batch.DefaultCapacity
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = publish.DefaultQueueDepth
	}
	if c.Influx.Host == "" {
		c.Influx.Host = "127.0.0.1"
	}
	if c.Influx.Port == 0 {
		c.Influx.Port = 8086
	}
}

func (c *Config) Validate() error {
	if !parse.Mode(c.Mode).Valid() {
		return fmt.Errorf("mode must be %q or %q, got %q", parse.ModeLive, parse.ModeLog, c.Mode)
	}
	if c.Database == "" {
		return fmt.Errorf("database file is required")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if _, err := c.FrameIDSet(); err != nil {
		return err
	}
	if _, err := c.Mask(); err != nil {
		return err
	}
	return nil
}

// PublishEnabled reports whether a sink database was configured.
func (c *Config) PublishEnabled() bool {
	return c.Influx.Database != ""
}

// FrameIDSet parses the frame-id allow-list. Entries accept the usual integer
// prefixes, so "0x1F0" and "496" name the same frame.
func (c *Config) FrameIDSet() ([]uint32, error) {
	if len(c.FrameIDs) == 0 {
		return nil, nil
	}
	ids := make([]uint32, 0, len(c.FrameIDs))
	for _, s := range c.FrameIDs {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("frame id %q: %w", s, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

// Mask parses the frame-id comparison mask; zero means exact-match lookup.
func (c *Config) Mask() (uint32, error) {
	if c.FrameIDMask == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(c.FrameIDMask, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("frame id mask %q: %w", c.FrameIDMask, err)
	}
	return uint32(v), nil
}
