//go:build !opus

package remote

import (
	"encoding/binary"
	"log"
	"os"
)

var audioLog = log.New(os.Stderr, "remote/audio: ", log.LstdFlags)

// AudioEncoder is the stub build without libopus: it always emits raw
// PCM. See opus_support.go for the real encoder.
type AudioEncoder struct{}

// NewAudioEncoder returns a PCM-only stub encoder. bitrate/complexity
// are accepted for API parity with the opus-enabled build and ignored.
func NewAudioEncoder(sampleRate, bitrate, complexity int) *AudioEncoder {
	if bitrate > 0 {
		audioLog.Printf("opus encoding requested but not compiled in (build with -tags opus), falling back to PCM")
	}
	return &AudioEncoder{}
}

// Encode always returns pcm unchanged with format "pcm".
func (e *AudioEncoder) Encode(pcm []int16) (data []byte, format string, err error) {
	return pcmBytes(pcm), "pcm", nil
}

// IsEnabled always returns false in the stub build.
func (e *AudioEncoder) IsEnabled() bool { return false }

func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
