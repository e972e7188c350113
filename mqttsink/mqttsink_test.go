package mqttsink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cwsl/sdrcore/message"
)

func TestWithDefaultsFillsClientIDAndInterval(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", Topic: "sdrcore/status"}.withDefaults()
	assert.NotEmpty(t, cfg.ClientID)
	assert.Equal(t, 30*time.Second, cfg.PublishInterval)
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{ClientID: "fixed", PublishInterval: 5 * time.Second}.withDefaults()
	assert.Equal(t, "fixed", cfg.ClientID)
	assert.Equal(t, 5*time.Second, cfg.PublishInterval)
}

func TestGenerateClientIDIsUnique(t *testing.T) {
	a := generateClientID()
	b := generateClientID()
	assert.NotEqual(t, a, b)
}

func TestStatusPayloadMarshalsSourceInfoFields(t *testing.T) {
	info := message.SourceInfo{
		Frequency:           14_070_000,
		EffectiveSampleRate: 48000,
		Antenna:             "dipole",
		Antennas:            []string{"dipole", "vertical"},
	}
	payload := StatusPayload{
		Frequency:           info.Frequency,
		EffectiveSampleRate: info.EffectiveSampleRate,
		Antenna:             info.Antenna,
		Antennas:            info.Antennas,
	}
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "14070000")
	assert.Contains(t, string(data), "dipole")
}
