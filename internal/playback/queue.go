package playback

import (
	"context"
	"sync"
)

// Clip is one playable unit of audio content.
type Clip struct {
	ID          string `json:"id"`
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

// Player performs one clip's playback, blocking until the clip finishes or
// fails. A synchronous start failure and a mid-playback failure look the
// same to the queue: both return an error.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// Outcome labels how a clip left the queue.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped_error"
	OutcomeDiscarded Outcome = "discarded_closed"
)

// Queue plays clips strictly in push order with at most one active playback.
// A clip is removed from the queue the moment playback is attempted, so
// queue membership and "currently playing" are separate state. Playback
// errors skip the clip and the drain continues; nothing here is fatal.
//
// External code may only append; the drain loop alone removes entries.
type Queue struct {
	player Player

	// OnOutcome, when set, observes every clip's fate. Called outside the
	// queue lock.
	OnOutcome func(clip Clip, outcome Outcome, err error)

	mu      sync.Mutex
	pending []Clip
	playing bool
	closed  bool
}

func NewQueue(player Player) *Queue {
	return &Queue{player: player}
}

// Push appends a clip and starts the drain if the queue is idle. Clips that
// arrive while another is playing wait their turn; they are never reordered
// or dropped for being late.
func (q *Queue) Push(clip Clip) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.observe(clip, OutcomeDiscarded, nil)
		return
	}
	q.pending = append(q.pending, clip)
	start := !q.playing
	if start {
		q.playing = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.playing = false
			q.mu.Unlock()
			return
		}
		clip := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		// Close does not cancel a clip already handed to the player.
		if err := q.player.Play(context.Background(), clip); err != nil {
			q.observe(clip, OutcomeSkipped, err)
			continue
		}
		q.observe(clip, OutcomeCompleted, nil)
	}
}

// Close stops the drain after the in-flight clip, if any, and discards the
// rest. Further pushes are discarded too.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	discarded := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, clip := range discarded {
		q.observe(clip, OutcomeDiscarded, nil)
	}
}

// Playing reports whether a clip is currently being played.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Pending returns the number of clips waiting behind the active one.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Idle reports that nothing is playing and nothing is queued.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing && len(q.pending) == 0
}

func (q *Queue) observe(clip Clip, outcome Outcome, err error) {
	if q.OnOutcome != nil {
		q.OnOutcome(clip, outcome, err)
	}
}
