package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/message"
)

const sampleYAML = `
source:
  type: soapysdr
  effective_sample_rate: 2400000
analyzer:
  sample_rate: 2400000
  mode: wide_spectrum
  min_sweep_freq: 1000000
  max_sweep_freq: 30000000
  hop_strategy: stochastic
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndParses(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "soapysdr", cfg.Source.Type)
	assert.Equal(t, 4096, cfg.Analyzer.WindowSize)
	assert.Equal(t, "hann", cfg.Analyzer.WindowFunc)
	assert.Equal(t, "stochastic", cfg.Analyzer.HopStrategy)
	assert.Equal(t, ":9090", cfg.Prometheus.ListenAddr)
}

func TestLoadRejectsMissingSourceType(t *testing.T) {
	path := writeTemp(t, "analyzer:\n  sample_rate: 48000\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvertedSweepRange(t *testing.T) {
	path := writeTemp(t, `
source:
  type: file
analyzer:
  sample_rate: 48000
  mode: wide_spectrum
  min_sweep_freq: 30000000
  max_sweep_freq: 1000000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestToParamsConvertsWideSpectrumMode(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	params := cfg.Analyzer.ToParams()
	assert.Equal(t, message.ModeWideSpectrum, params.Mode)
	assert.Equal(t, cfg.Analyzer.SampleRate, params.SampleRate)
}
