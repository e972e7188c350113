//go:build !opus

package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioEncoderStubAlwaysEmitsPCM(t *testing.T) {
	enc := NewAudioEncoder(48000, 24000, 5)
	assert.False(t, enc.IsEnabled())

	data, format, err := enc.Encode([]int16{1, 2, 3})
	assert.NoError(t, err)
	assert.Equal(t, "pcm", format)
	assert.Len(t, data, 6)
}
