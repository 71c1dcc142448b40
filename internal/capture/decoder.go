package capture

import (
	"fmt"

	"github.com/abhishekaryan23/vaultvoice/internal/audio"
)

// WAVDecoder decodes sessions whose fragments form one PCM16 WAV stream.
type WAVDecoder struct{}

func (WAVDecoder) Decode(encoded []byte) (audio.Buffer, error) {
	return audio.DecodeWAV(encoded)
}

// PCM16Decoder decodes raw interleaved little-endian 16-bit PCM fragments,
// the shape the UI bridge relays straight from the browser capture node.
type PCM16Decoder struct {
	SampleRate int
	Channels   int
}

func (d PCM16Decoder) Decode(encoded []byte) (audio.Buffer, error) {
	if d.SampleRate <= 0 {
		return audio.Buffer{}, fmt.Errorf("pcm16 decoder: invalid sample rate %d", d.SampleRate)
	}
	channels := d.Channels
	if channels <= 0 {
		channels = 1
	}

	samples := audio.PCM16LEToFloat(encoded)
	frames := len(samples) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = samples[i*channels+c]
		}
	}
	return audio.Buffer{SampleRate: d.SampleRate, Channels: out}, nil
}
