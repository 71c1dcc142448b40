package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestFloatSampleToPCM16Clamping(t *testing.T) {
	if got := FloatSampleToPCM16(1.5); got != 32767 {
		t.Fatalf("FloatSampleToPCM16(1.5) = %d, want 32767", got)
	}
	if got := FloatSampleToPCM16(-1.5); got != -32768 {
		t.Fatalf("FloatSampleToPCM16(-1.5) = %d, want -32768", got)
	}
	if got := FloatSampleToPCM16(0); got != 0 {
		t.Fatalf("FloatSampleToPCM16(0) = %d, want 0", got)
	}
	if got := FloatSampleToPCM16(1); got != 32767 {
		t.Fatalf("FloatSampleToPCM16(1) = %d, want 32767", got)
	}
	if got := FloatSampleToPCM16(-1); got != -32768 {
		t.Fatalf("FloatSampleToPCM16(-1) = %d, want -32768", got)
	}
}

func TestResampleOutputLength(t *testing.T) {
	// 441 samples at 44100 Hz is 0.01 s; at 16000 Hz that is 160 samples.
	in := make([]float64, 441)
	out := Resample(in, 44100, 16000)
	if len(out) != 160 {
		t.Fatalf("resampled len = %d, want 160", len(out))
	}

	// A length that does not divide evenly must round up.
	in = make([]float64, 100)
	out = Resample(in, 48000, 16000)
	want := int(math.Ceil(100.0 / 48000.0 * 16000.0))
	if len(out) != want {
		t.Fatalf("resampled len = %d, want %d", len(out), want)
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	if len(out) != 3 {
		t.Fatalf("resampled len = %d, want 3", len(out))
	}
	out[0] = 0.9
	if in[0] != 0.1 {
		t.Fatalf("Resample must not alias the input slice")
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Upsampling a ramp should stay within the ramp's bounds and keep order.
	in := []float64{0, 0.5, 1}
	out := Resample(in, 8000, 16000)
	if len(out) != 6 {
		t.Fatalf("resampled len = %d, want 6", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("resampled ramp not monotonic at %d: %v", i, out)
		}
	}
	if out[0] != 0 || out[len(out)-1] != 1 {
		t.Fatalf("resampled endpoints = %v, want ramp from 0 to 1", out)
	}
}

func TestDownmixMonoAverages(t *testing.T) {
	b := Buffer{
		SampleRate: 16000,
		Channels: [][]float64{
			{1, 0, -1},
			{0, 0, -1},
		},
	}
	out := DownmixMono(b)
	want := []float64{0.5, 0, -1}
	if len(out) != len(want) {
		t.Fatalf("downmix len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("downmix[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEncodeWAVDeterministicHeader(t *testing.T) {
	pcm := FloatToPCM16LE([]float64{0, 0.25, -0.25, 1})
	a, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	b, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding the same samples twice produced different bytes")
	}
	if len(a) != 44+len(pcm) {
		t.Fatalf("container len = %d, want %d", len(a), 44+len(pcm))
	}
	if string(a[0:4]) != "RIFF" || string(a[8:12]) != "WAVE" {
		t.Fatalf("container missing RIFF/WAVE magic: % x", a[:12])
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []float64{0, 0.5, -0.5, 1, -1}
	wav, err := EncodeWAVPCM16LE(FloatToPCM16LE(samples), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	buf, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if buf.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", buf.SampleRate)
	}
	if len(buf.Channels) != 1 {
		t.Fatalf("channels = %d, want 1", len(buf.Channels))
	}
	if buf.Frames() != len(samples) {
		t.Fatalf("frames = %d, want %d", buf.Frames(), len(samples))
	}
	for i, want := range samples {
		if got := buf.Channels[0][i]; math.Abs(got-want) > 1.0/16384 {
			t.Fatalf("decoded sample %d = %v, want about %v", i, got, want)
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Fatalf("DecodeWAV() on garbage should fail")
	}
}
