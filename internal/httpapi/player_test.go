package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abhishekaryan23/vaultvoice/internal/playback"
	"github.com/abhishekaryan23/vaultvoice/internal/protocol"
)

func TestWSPlayerResolvesOnAck(t *testing.T) {
	outbound := make(chan any, 4)
	p := newWSPlayer("d1", outbound, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- p.Play(context.Background(), playback.Clip{ID: "clip-1", AudioBase64: "AAAA", Format: "wav"})
	}()

	select {
	case msg := <-outbound:
		clip, ok := msg.(protocol.PlaybackClip)
		if !ok || clip.ClipID != "clip-1" {
			t.Fatalf("outbound message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("no clip forwarded")
	}

	p.ack("clip-1", "")
	if err := <-done; err != nil {
		t.Fatalf("Play() error = %v", err)
	}
}

func TestWSPlayerPropagatesUIFailure(t *testing.T) {
	outbound := make(chan any, 4)
	p := newWSPlayer("d1", outbound, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- p.Play(context.Background(), playback.Clip{ID: "clip-2"})
	}()
	<-outbound
	p.ack("clip-2", "decode failed")

	err := <-done
	if err == nil || !strings.Contains(err.Error(), "decode failed") {
		t.Fatalf("Play() error = %v, want UI failure detail", err)
	}
}

func TestWSPlayerAckTimeout(t *testing.T) {
	outbound := make(chan any, 4)
	p := newWSPlayer("d1", outbound, 20*time.Millisecond)

	err := p.Play(context.Background(), playback.Clip{ID: "clip-3"})
	if !errors.Is(err, errPlaybackAck) {
		t.Fatalf("Play() error = %v, want errPlaybackAck", err)
	}
}

func TestWSPlayerClosedRejectsPlay(t *testing.T) {
	outbound := make(chan any)
	p := newWSPlayer("d1", outbound, time.Second)
	p.close()

	if err := p.Play(context.Background(), playback.Clip{ID: "clip-4"}); !errors.Is(err, errPlayerClosed) {
		t.Fatalf("Play() error = %v, want errPlayerClosed", err)
	}
}

func TestWSPlayerLateAckIgnored(t *testing.T) {
	outbound := make(chan any, 4)
	p := newWSPlayer("d1", outbound, time.Second)

	// Ack for a clip nobody is waiting on must not panic or block.
	p.ack("ghost", "")
}
