// Package capture buffers encoded microphone fragments for one recording
// session and finalizes them into the fixed-format container the backend
// transcriber accepts: RIFF/WAVE, PCM, mono, 16000 Hz, 16-bit.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/abhishekaryan23/vaultvoice/internal/audio"
)

const TargetSampleRate = 16000

var (
	ErrFinalized = errors.New("capture session already finalized")
	ErrNoAudio   = errors.New("capture session holds no audio")
)

// Decoder turns the session's concatenated encoded fragments into raw
// samples at their native rate and channel count.
type Decoder interface {
	Decode(encoded []byte) (audio.Buffer, error)
}

// Session accumulates raw media fragments between start and stop. It exists
// only for one recording; once its single output container is produced (or
// the session is aborted) it accepts nothing further.
type Session struct {
	mu        sync.Mutex
	decoder   Decoder
	fragments [][]byte
	total     int
	maxBytes  int
	finalized bool

	releaseOnce sync.Once
	release     func()
}

// NewSession starts a capture session. release is invoked exactly once when
// the session finalizes or aborts, whatever the finalization outcome; it
// stands in for dropping the microphone stream and device tracks.
// maxBytes bounds the buffered audio; zero means unbounded.
func NewSession(decoder Decoder, release func(), maxBytes int) *Session {
	return &Session{decoder: decoder, release: release, maxBytes: maxBytes}
}

// Append buffers one encoded fragment as it becomes available from the
// capture subsystem.
func (s *Session) Append(fragment []byte) error {
	if len(fragment) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if s.maxBytes > 0 && s.total+len(fragment) > s.maxBytes {
		return fmt.Errorf("capture buffer full: %d bytes buffered, limit %d", s.total, s.maxBytes)
	}
	buf := make([]byte, len(fragment))
	copy(buf, fragment)
	s.fragments = append(s.fragments, buf)
	s.total += len(fragment)
	return nil
}

// Stop finalizes the session exactly once and returns the finished WAV
// container. Capture resources are released even when finalization fails.
func (s *Session) Stop() ([]byte, error) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return nil, ErrFinalized
	}
	s.finalized = true
	encoded := concat(s.fragments, s.total)
	s.fragments = nil
	s.mu.Unlock()

	defer s.doRelease()

	if len(encoded) == 0 {
		return nil, ErrNoAudio
	}

	buf, err := s.decoder.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode captured audio: %w", err)
	}
	if buf.Frames() == 0 {
		return nil, ErrNoAudio
	}

	mono := audio.DownmixMono(buf)
	resampled := audio.Resample(mono, buf.SampleRate, TargetSampleRate)
	container, err := audio.EncodeWAVPCM16LE(audio.FloatToPCM16LE(resampled), TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode wav container: %w", err)
	}
	return container, nil
}

// Abort finalizes the session without producing output, discarding any
// buffered audio. Used when the owning dialogue closes mid-recording.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	s.fragments = nil
	s.mu.Unlock()
	s.doRelease()
}

// Finalized reports whether Stop or Abort ran.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// BufferedBytes returns the size of the accumulated fragments.
func (s *Session) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *Session) doRelease() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

func concat(fragments [][]byte, total int) []byte {
	out := make([]byte, 0, total)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
