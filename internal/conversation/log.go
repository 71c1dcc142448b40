package conversation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/abhishekaryan23/vaultvoice/internal/stream"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one exchange unit. Turns are immutable values: every update
// replaces the stored turn wholesale, so observers holding a snapshot never
// see content change underneath them.
type Turn struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Verified   *bool  `json:"verified,omitempty"`
	Correction string `json:"correction,omitempty"`
}

// Log is an append-only ordered sequence of turns for one open dialogue.
// "The current agent turn" is always the last turn in the sequence.
type Log struct {
	mu       sync.RWMutex
	turns    []Turn
	revision uint64
}

func NewLog() *Log {
	return &Log{}
}

// Apply mutates the log according to one stream frame. Audio frames carry
// no conversational state and are ignored here.
func (l *Log) Apply(f stream.Frame) {
	switch f.Kind {
	case stream.KindQuery:
		l.AppendExchange(f.Text)
	case stream.KindToken:
		l.AppendToken(f.Text)
	case stream.KindVerification:
		l.SetVerification(f.Verified, f.Correction)
	}
}

// AppendExchange appends a completed user turn and its empty agent
// placeholder as one atomic pair, so a token frame processed next always
// lands on the placeholder.
func (l *Log) AppendExchange(query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns,
		Turn{ID: uuid.NewString(), Role: RoleUser, Content: query},
		Turn{ID: uuid.NewString(), Role: RoleAgent},
	)
	l.revision++
}

// AppendToken appends a text fragment to the last turn if it is an agent
// turn. Tokens arriving with no open agent turn are dropped; the stream is
// not trusted to pair events correctly.
func (l *Log) AppendToken(fragment string) bool {
	if fragment == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.turns) - 1
	if i < 0 || l.turns[i].Role != RoleAgent {
		return false
	}
	t := l.turns[i]
	t.Content += fragment
	l.turns[i] = t
	l.revision++
	return true
}

// SetVerification annotates the last turn if it is an agent turn.
// Verification does not finalize the turn: later tokens keep accumulating.
func (l *Log) SetVerification(verified bool, correction string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.turns) - 1
	if i < 0 || l.turns[i].Role != RoleAgent {
		return false
	}
	t := l.turns[i]
	v := verified
	t.Verified = &v
	t.Correction = correction
	l.turns[i] = t
	l.revision++
	return true
}

// Snapshot returns a copy of the turns in display order.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Revision increases on every mutation; observers compare revisions instead
// of diffing turn contents.
func (l *Log) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// LastExchange returns the final (user, agent) pair, if the log ends with
// one completed exchange.
func (l *Log) LastExchange() (user, agent Turn, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.turns)
	if n < 2 || l.turns[n-2].Role != RoleUser || l.turns[n-1].Role != RoleAgent {
		return Turn{}, Turn{}, false
	}
	return l.turns[n-2], l.turns[n-1], true
}
