package dialogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abhishekaryan23/vaultvoice/internal/capture"
	"github.com/abhishekaryan23/vaultvoice/internal/conversation"
	"github.com/abhishekaryan23/vaultvoice/internal/playback"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// ErrNoPlayer is returned for clips played while no sink is attached; the
// queue treats it like any playback failure and skips the clip.
var ErrNoPlayer = errors.New("no playback sink attached")

// Dialogue is one open conversation. It owns the conversation log, the
// playback queue and at most one capture session at a time.
type Dialogue struct {
	ID     string
	NoteID int

	Log   *conversation.Log
	Queue *playback.Queue

	player *playerProxy

	mu             sync.Mutex
	status         Status
	capture        *capture.Session
	startedAt      time.Time
	lastActivityAt time.Time

	// notify coalesces change signals for the UI bridge.
	notify chan struct{}
}

// Changed yields a signal after any observable mutation: log revision,
// playback state or capture lifecycle. Signals coalesce; consumers should
// re-read full state on each wake-up.
func (d *Dialogue) Changed() <-chan struct{} {
	return d.notify
}

func (d *Dialogue) signal() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *Dialogue) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dialogue) StartedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startedAt
}

func (d *Dialogue) LastActivityAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivityAt
}

// Capturing reports whether a capture session is active.
func (d *Dialogue) Capturing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture != nil
}

func (d *Dialogue) touch() {
	d.mu.Lock()
	d.lastActivityAt = time.Now().UTC()
	d.mu.Unlock()
}

// AttachPlayer routes queued clips to p until DetachPlayer. Clips played
// with no attached sink are skipped, not buffered.
func (d *Dialogue) AttachPlayer(p playback.Player) {
	d.player.set(p)
}

func (d *Dialogue) DetachPlayer() {
	d.player.set(nil)
}

type playerProxy struct {
	mu       sync.RWMutex
	delegate playback.Player
}

func (p *playerProxy) set(delegate playback.Player) {
	p.mu.Lock()
	p.delegate = delegate
	p.mu.Unlock()
}

func (p *playerProxy) Play(ctx context.Context, clip playback.Clip) error {
	p.mu.RLock()
	delegate := p.delegate
	p.mu.RUnlock()
	if delegate == nil {
		return ErrNoPlayer
	}
	return delegate.Play(ctx, clip)
}
