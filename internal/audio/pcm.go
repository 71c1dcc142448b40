package audio

import (
	"encoding/binary"
	"math"
)

// Buffer holds decoded audio as per-channel float samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of samples per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// DownmixMono averages all channels into a single mono track.
func DownmixMono(b Buffer) []float64 {
	if len(b.Channels) == 0 {
		return nil
	}
	if len(b.Channels) == 1 {
		out := make([]float64, len(b.Channels[0]))
		copy(out, b.Channels[0])
		return out
	}
	frames := b.Frames()
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for _, ch := range b.Channels {
			if i < len(ch) {
				sum += ch[i]
			}
		}
		out[i] = sum / float64(len(b.Channels))
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate by linear
// interpolation. The output length is ceil(duration_seconds * dstRate),
// matching an offline rendering pass over the same duration.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return nil
	}
	if srcRate == dstRate {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	duration := float64(len(samples)) / float64(srcRate)
	outLen := int(math.Ceil(duration * float64(dstRate)))
	if outLen <= 0 {
		return nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// FloatToPCM16LE converts float samples to little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767, so the full int16 range is reachable.
func FloatToPCM16LE(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatSampleToPCM16(s)))
	}
	return out
}

// FloatSampleToPCM16 converts one float sample using the clamp-then-scale rule.
func FloatSampleToPCM16(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// PCM16SampleToFloat inverts FloatSampleToPCM16.
func PCM16SampleToFloat(v int16) float64 {
	if v < 0 {
		return float64(v) / 32768
	}
	return float64(v) / 32767
}

// PCM16LEToFloat converts little-endian signed 16-bit PCM bytes to float
// samples. A trailing odd byte is ignored.
func PCM16LEToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = PCM16SampleToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}
