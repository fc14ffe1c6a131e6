package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/trainwatch/internal/best"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/schedule"
	"github.com/danielpatrickdp/trainwatch/internal/watch"
)

// #region env
const (
	EnvDB         = "TRAINWATCH_DB"
	EnvRemoteAddr = "TRAINWATCH_REMOTE_ADDR"
)
// #endregion env

// #region types
// Config is the full description of one instrumented run.
type Config struct {
	Run         RunConfig          `yaml:"run" json:"run"`
	Schedule    *ScheduleConfig    `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Cadence     *CadenceConfig     `yaml:"cadence,omitempty" json:"cadence,omitempty"`
	Watchers    []WatcherConfig    `yaml:"watchers" json:"watchers" validate:"dive"`
	Dispatchers []DispatcherConfig `yaml:"dispatchers" json:"dispatchers" validate:"dive"`
	Sinks       SinkConfig         `yaml:"sinks" json:"sinks"`
}

// RunConfig shapes the synthetic workload.
type RunConfig struct {
	Epochs          int     `yaml:"epochs" json:"epochs" validate:"gt=0"`
	BatchesPerEpoch int     `yaml:"batches_per_epoch" json:"batches_per_epoch" validate:"gt=0"`
	Seed            int64   `yaml:"seed" json:"seed"`
	Noise           float64 `yaml:"noise" json:"noise" validate:"gte=0"`
}

// ScheduleConfig is a learning-rate schedule plus the host's own stepping policy.
type ScheduleConfig struct {
	schedule.Spec `yaml:",inline"`
	Interval      string `yaml:"interval" json:"interval" validate:"omitempty,oneof=step epoch"`
	Frequency     int64  `yaml:"frequency" json:"frequency" validate:"gte=0"`
}

// CadenceConfig configures the periodic schedule trigger.
type CadenceConfig struct {
	Every         int64 `yaml:"every" json:"every" validate:"gt=0"`
	SoleAuthority bool  `yaml:"sole_authority" json:"sole_authority"`
}

// WatcherConfig configures one epoch metric watcher. At most one of Key and
// Index selects the value from the batch output; neither means identity.
type WatcherConfig struct {
	Metric    string `yaml:"metric" json:"metric" validate:"required"`
	Mode      string `yaml:"mode" json:"mode" validate:"required,oneof=min max"`
	TieCounts *bool  `yaml:"tie_counts,omitempty" json:"tie_counts,omitempty"`
	LogStep   bool   `yaml:"log_step" json:"log_step"`
	Key       string `yaml:"key,omitempty" json:"key,omitempty"`
	Index     *int   `yaml:"index,omitempty" json:"index,omitempty" validate:"omitempty,gte=0"`
}

// DispatcherConfig configures one improvement-gated action.
type DispatcherConfig struct {
	Metric string `yaml:"metric" json:"metric" validate:"required"`
	Mode   string `yaml:"mode" json:"mode" validate:"required,oneof=min max"`
	On     string `yaml:"on" json:"on" validate:"required"`
	Action string `yaml:"action" json:"action" validate:"required,oneof=log checkpoint record"`
	Dir    string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// SinkConfig selects where logged values go besides the process log.
type SinkConfig struct {
	SQLite      string `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	Remote      string `yaml:"remote,omitempty" json:"remote,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	Quiet       bool   `yaml:"quiet" json:"quiet"`
}
// #endregion types

// #region load
// Load reads a Config, applies environment overrides and then each of
// overrides in order, and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys. It does not validate.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides sink locations from the environment.
func (c *Config) ApplyEnv() {
	c.Sinks.SQLite = envOr(EnvDB, c.Sinks.SQLite)
	c.Sinks.Remote = envOr(EnvRemoteAddr, c.Sinks.Remote)
}
// #endregion load

// #region validate
var validate = validator.New()

// Validate checks struct constraints, then the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Schedule != nil {
		if _, err := schedule.New(c.Schedule.Spec); err != nil {
			return fmt.Errorf("invalid config: schedule: %w", err)
		}
	}
	for i, d := range c.Dispatchers {
		if _, err := hooks.ParseKind(d.On); err != nil {
			return fmt.Errorf("invalid config: dispatchers[%d] %s: %w", i, d.Metric, err)
		}
	}
	if err := c.checkWiring(c.Sinks.SQLite != ""); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// checkWiring holds the cross-field rules Build also enforces. hasDB reports
// whether record actions will have a database to write to.
func (c *Config) checkWiring(hasDB bool) error {
	for i, w := range c.Watchers {
		if w.Key != "" && w.Index != nil {
			return fmt.Errorf("watchers[%d] %s: key and index are exclusive", i, w.Metric)
		}
	}
	for i, d := range c.Dispatchers {
		if d.Action == "checkpoint" && d.Dir == "" {
			return fmt.Errorf("dispatchers[%d] %s: checkpoint needs dir", i, d.Metric)
		}
		if d.Action == "record" && !hasDB {
			return fmt.Errorf("dispatchers[%d] %s: record needs sinks.sqlite", i, d.Metric)
		}
	}
	return nil
}
// #endregion validate

// #region conversions
// WatchConfig converts to the watcher's own configuration.
func (w WatcherConfig) WatchConfig() watch.Config {
	cfg := watch.DefaultConfig(w.Metric)
	cfg.Mode = best.Mode(w.Mode)
	cfg.LogStep = w.LogStep
	if w.TieCounts != nil {
		cfg.TieCounts = *w.TieCounts
	}
	switch {
	case w.Key != "":
		cfg.Extractor = watch.Key(w.Key)
	case w.Index != nil:
		cfg.Extractor = watch.Index(*w.Index)
	}
	return cfg
}
// #endregion conversions

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
