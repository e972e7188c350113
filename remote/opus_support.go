//go:build opus

package remote

import (
	"encoding/binary"
	"log"
	"os"

	opus "gopkg.in/hraban/opus.v2"
)

var audioLog = log.New(os.Stderr, "remote/audio: ", log.LstdFlags)

// AudioEncoder wraps an Opus encoder for streaming an inspector's
// demodulated audio over the WebSocket data plane.
//
// Grounded on opus_support.go/opus_stub.go's build-tag pair: the
// encoder degrades to raw PCM passthrough whenever Opus is unavailable
// or fails to initialize, never a hard error.
type AudioEncoder struct {
	encoder *opus.Encoder
	enabled bool
}

// NewAudioEncoder constructs an encoder for the given sample rate and
// target bitrate. bitrate <= 0 disables Opus and falls back to PCM.
func NewAudioEncoder(sampleRate, bitrate, complexity int) *AudioEncoder {
	enc := &AudioEncoder{}
	if bitrate <= 0 {
		return enc
	}

	encoder, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		audioLog.Printf("opus encoding requested but failed to initialize: %v, falling back to PCM", err)
		return enc
	}
	if err := encoder.SetBitrate(bitrate); err != nil {
		audioLog.Printf("failed to set opus bitrate: %v", err)
	}
	if err := encoder.SetComplexity(complexity); err != nil {
		audioLog.Printf("failed to set opus complexity: %v", err)
	}

	enc.encoder = encoder
	enc.enabled = true
	audioLog.Printf("opus encoder initialized: %d Hz, %d bps, complexity %d", sampleRate, bitrate, complexity)
	return enc
}

// Encode converts pcm (little-endian int16 samples) to Opus, or
// returns pcm unchanged with format "pcm" when Opus is unavailable.
func (e *AudioEncoder) Encode(pcm []int16) (data []byte, format string, err error) {
	if !e.enabled || e.encoder == nil {
		return pcmBytes(pcm), "pcm", nil
	}

	out := make([]byte, 4000)
	n, err := e.encoder.Encode(pcm, out)
	if err != nil {
		audioLog.Printf("opus encoding error: %v, falling back to PCM for this frame", err)
		return pcmBytes(pcm), "pcm", err
	}
	return out[:n], "opus", nil
}

// IsEnabled reports whether this encoder is actually emitting Opus.
func (e *AudioEncoder) IsEnabled() bool { return e.enabled }

func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
