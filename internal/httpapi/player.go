package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abhishekaryan23/vaultvoice/internal/playback"
	"github.com/abhishekaryan23/vaultvoice/internal/protocol"
)

var (
	errPlayerClosed  = errors.New("websocket player closed")
	errPlaybackAck   = errors.New("playback ack timed out")
	errOutboundStall = errors.New("outbound queue stalled")
)

// wsPlayer forwards queued clips to the connected UI and holds the playback
// slot until the UI acknowledges that the clip finished. That keeps the
// one-clip-at-a-time contract intact across the websocket hop.
type wsPlayer struct {
	dialogueID string
	outbound   chan<- any
	ackTimeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan string
	closed  chan struct{}
	once    sync.Once
}

func newWSPlayer(dialogueID string, outbound chan<- any, ackTimeout time.Duration) *wsPlayer {
	if ackTimeout <= 0 {
		ackTimeout = 45 * time.Second
	}
	return &wsPlayer{
		dialogueID: dialogueID,
		outbound:   outbound,
		ackTimeout: ackTimeout,
		waiters:    make(map[string]chan string),
		closed:     make(chan struct{}),
	}
}

func (p *wsPlayer) Play(ctx context.Context, clip playback.Clip) error {
	wait := make(chan string, 1)
	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		return errPlayerClosed
	default:
	}
	p.waiters[clip.ID] = wait
	p.mu.Unlock()
	defer p.forget(clip.ID)

	msg := protocol.PlaybackClip{
		Type:        protocol.TypePlaybackClip,
		DialogueID:  p.dialogueID,
		ClipID:      clip.ID,
		AudioBase64: clip.AudioBase64,
		Format:      clip.Format,
	}
	select {
	case p.outbound <- msg:
	case <-p.closed:
		return errPlayerClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.ackTimeout):
		return errOutboundStall
	}

	select {
	case detail := <-wait:
		if detail != "" {
			return fmt.Errorf("ui playback failed: %s", detail)
		}
		return nil
	case <-p.closed:
		return errPlayerClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.ackTimeout):
		return errPlaybackAck
	}
}

// ack resolves the waiter for a finished clip. Unknown clip IDs are ignored;
// the waiter may already have timed out.
func (p *wsPlayer) ack(clipID, detail string) {
	p.mu.Lock()
	wait, ok := p.waiters[clipID]
	delete(p.waiters, clipID)
	p.mu.Unlock()
	if ok {
		wait <- detail
	}
}

func (p *wsPlayer) forget(clipID string) {
	p.mu.Lock()
	delete(p.waiters, clipID)
	p.mu.Unlock()
}

func (p *wsPlayer) close() {
	p.once.Do(func() { close(p.closed) })
}
