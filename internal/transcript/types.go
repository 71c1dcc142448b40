package transcript

import (
	"context"
	"time"
)

// TurnRecord is one persisted conversational turn from a finished exchange.
type TurnRecord struct {
	ID         string    `json:"id"`
	DialogueID string    `json:"dialogue_id"`
	NoteID     int       `json:"note_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Verified   *bool     `json:"verified,omitempty"`
	Correction string    `json:"correction,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists and retrieves dialogue transcripts.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, dialogueID string, limit int) ([]TurnRecord, error)
	Close() error
}
