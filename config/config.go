// Package config loads the YAML configuration consumed by an embedding
// application's analyzer construction: source backend parameters,
// analyzer DSP parameters, and the optional Prometheus/MQTT/gRPC
// sidecars.
//
// Grounded on config.go's LoadConfig: read-whole-file, yaml.Unmarshal
// into a nested struct, then apply defaults for zero-value fields that
// have a meaningful non-zero default.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwsl/sdrcore/message"
)

// Config is the root configuration document, per spec §6's "Source-
// config (consumed from external collaborator)" note generalized to
// cover every ambient concern this module's embedder configures.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Remote     RemoteConfig     `yaml:"remote"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the radio backend an embedder constructs and
// hands to Analyzer as the Source collaborator.
type SourceConfig struct {
	Type                string   `yaml:"type"`
	EffectiveSampleRate float64  `yaml:"effective_sample_rate"`
	Frequency           float64  `yaml:"frequency"`
	LNBFrequency        float64  `yaml:"lnb_frequency"`
	Antenna             string   `yaml:"antenna"`
	Bandwidth           float64  `yaml:"bandwidth"`
	PPM                 float64  `yaml:"ppm"`
	DCRemove            bool     `yaml:"dc_remove"`
	IQReverse           bool     `yaml:"iq_reverse"`
	AGC                 bool     `yaml:"agc"`
	QTH                 *QTH     `yaml:"qth,omitempty"`
	Extra               map[string]any `yaml:"extra,omitempty"`
}

// QTH is the observer location used by the frequency corrector (spec
// §4.5).
type QTH struct {
	LatDeg  float64 `yaml:"lat_deg"`
	LonDeg  float64 `yaml:"lon_deg"`
	HeightM float64 `yaml:"height_m"`
}

// AnalyzerConfig mirrors message.AnalyzerParams plus the hop-strategy
// and scheduler knobs exposed on Analyzer's Config.
type AnalyzerConfig struct {
	Mode       string `yaml:"mode"` // "channel" or "wide_spectrum"
	WindowSize int    `yaml:"window_size"`
	WindowFunc string `yaml:"window_func"` // "hann", "hamming", "blackman_harris"
	SampleRate float64 `yaml:"sample_rate"`
	Decimation int     `yaml:"decimation"`
	Alpha      float64 `yaml:"alpha"`

	ChannelUpdateIntervalMS int `yaml:"channel_update_interval_ms"`
	PSDUpdateIntervalMS     int `yaml:"psd_update_interval_ms"`

	MinSweepFreq float64 `yaml:"min_sweep_freq"`
	MaxSweepFreq float64 `yaml:"max_sweep_freq"`
	HopStrategy  string  `yaml:"hop_strategy"` // "progressive" or "stochastic"

	SchedulerWorkers int `yaml:"scheduler_workers"`

	OrbitReportIntervalSec int `yaml:"orbit_report_interval_sec"`
}

// ChannelUpdateInterval converts the millisecond YAML field to a
// time.Duration.
func (a AnalyzerConfig) ChannelUpdateInterval() time.Duration {
	return time.Duration(a.ChannelUpdateIntervalMS) * time.Millisecond
}

// PSDUpdateInterval converts the millisecond YAML field to a
// time.Duration.
func (a AnalyzerConfig) PSDUpdateInterval() time.Duration {
	return time.Duration(a.PSDUpdateIntervalMS) * time.Millisecond
}

// ToParams converts the YAML analyzer section into the runtime
// message.AnalyzerParams the Analyzer is constructed/re-parametrized
// with, per spec §3/§6.
func (a AnalyzerConfig) ToParams() message.AnalyzerParams {
	mode := message.ModeChannel
	if a.Mode == "wide_spectrum" {
		mode = message.ModeWideSpectrum
	}
	return message.AnalyzerParams{
		Mode:                  mode,
		WindowSize:            a.WindowSize,
		WindowFunc:            a.WindowFunc,
		SampleRate:            a.SampleRate,
		Decimation:            a.Decimation,
		Alpha:                 a.Alpha,
		ChannelUpdateInterval: a.ChannelUpdateInterval(),
		PSDUpdateInterval:     a.PSDUpdateInterval(),
		MinSweepFreq:          a.MinSweepFreq,
		MaxSweepFreq:          a.MaxSweepFreq,
	}
}

// PrometheusConfig configures the metrics sidecar.
type PrometheusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	PushURL    string `yaml:"push_url,omitempty"`
}

// MQTTConfig configures the optional MQTT status republisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// RemoteConfig configures the optional gRPC/WebSocket remote control
// and data plane.
type RemoteConfig struct {
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
	WSListenAddr   string `yaml:"ws_listen_addr"`
	OpusEnabled    bool   `yaml:"opus_enabled"`
}

// LoggingConfig selects the ambient logging verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Load reads and parses filename, applying defaults for zero-value
// fields that have a meaningful non-zero default, per config.go's
// LoadConfig.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Analyzer.Mode == "" {
		c.Analyzer.Mode = "channel"
	}
	if c.Analyzer.WindowSize == 0 {
		c.Analyzer.WindowSize = 4096
	}
	if c.Analyzer.WindowFunc == "" {
		c.Analyzer.WindowFunc = "hann"
	}
	if c.Analyzer.Decimation == 0 {
		c.Analyzer.Decimation = 1
	}
	if c.Analyzer.Alpha == 0 {
		c.Analyzer.Alpha = 0.1
	}
	if c.Analyzer.HopStrategy == "" {
		c.Analyzer.HopStrategy = "progressive"
	}
	if c.Prometheus.ListenAddr == "" {
		c.Prometheus.ListenAddr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects a configuration that would make construction of the
// analyzer meaningless (e.g. zero sample rate), per spec §4.10's
// implicit preconditions.
func (c *Config) Validate() error {
	if c.Source.Type == "" {
		return fmt.Errorf("config: source.type is required")
	}
	if c.Analyzer.SampleRate <= 0 {
		return fmt.Errorf("config: analyzer.sample_rate must be positive")
	}
	if c.Analyzer.Mode != "channel" && c.Analyzer.Mode != "wide_spectrum" {
		return fmt.Errorf("config: analyzer.mode must be \"channel\" or \"wide_spectrum\", got %q", c.Analyzer.Mode)
	}
	if c.Analyzer.Mode == "wide_spectrum" && c.Analyzer.MaxSweepFreq <= c.Analyzer.MinSweepFreq {
		return fmt.Errorf("config: analyzer.max_sweep_freq must exceed min_sweep_freq in wide_spectrum mode")
	}
	if c.Analyzer.HopStrategy != "progressive" && c.Analyzer.HopStrategy != "stochastic" {
		return fmt.Errorf("config: analyzer.hop_strategy must be \"progressive\" or \"stochastic\", got %q", c.Analyzer.HopStrategy)
	}
	return nil
}
