package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhishekaryan23/vaultvoice/internal/conversation"
)

// MessageType identifies websocket payload variants on the UI bridge.
type MessageType string

const (
	TypeClientQuery          MessageType = "client_query"
	TypeClientCaptureControl MessageType = "client_capture_control"
	TypeClientCaptureChunk   MessageType = "client_capture_chunk"
	TypeClientPlaybackDone   MessageType = "client_playback_done"
	TypeTurnUpdate           MessageType = "turn_update"
	TypePlaybackClip         MessageType = "playback_clip"
	TypePlaybackState        MessageType = "playback_state"
	TypeCaptureState         MessageType = "capture_state"
	TypeErrorEvent           MessageType = "error_event"
)

const (
	CaptureActionStart = "start"
	CaptureActionStop  = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientQuery submits a typed question against the dialogue's note.
type ClientQuery struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	Query      string      `json:"query"`
}

// ClientCaptureControl starts or stops the dialogue's capture session.
// SampleRate describes the PCM chunks that will follow a start action.
type ClientCaptureControl struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	Action     string      `json:"action"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Channels   int         `json:"channels,omitempty"`
}

// ClientCaptureChunk carries one raw PCM16LE fragment from the UI capture node.
type ClientCaptureChunk struct {
	Type        MessageType `json:"type"`
	DialogueID  string      `json:"dialogue_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
}

// ClientPlaybackDone acknowledges that a forwarded clip finished (or failed)
// on the UI side.
type ClientPlaybackDone struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	ClipID     string      `json:"clip_id"`
	Error      string      `json:"error,omitempty"`
}

// TurnUpdate pushes a full conversation snapshot keyed by log revision.
type TurnUpdate struct {
	Type       MessageType         `json:"type"`
	DialogueID string              `json:"dialogue_id"`
	Revision   uint64              `json:"revision"`
	Turns      []conversation.Turn `json:"turns"`
}

// PlaybackClip hands one audio clip to the UI for playback.
type PlaybackClip struct {
	Type        MessageType `json:"type"`
	DialogueID  string      `json:"dialogue_id"`
	ClipID      string      `json:"clip_id"`
	AudioBase64 string      `json:"audio_base64"`
	Format      string      `json:"format"`
}

// PlaybackState reports the queue's current shape.
type PlaybackState struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	Playing    bool        `json:"playing"`
	Pending    int         `json:"pending"`
}

// CaptureState reports the capture session's lifecycle.
type CaptureState struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	State      string      `json:"state"`
	Detail     string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type       MessageType `json:"type"`
	DialogueID string      `json:"dialogue_id"`
	Code       string      `json:"code"`
	Source     string      `json:"source"`
	Retryable  bool        `json:"retryable"`
	Detail     string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientQuery:
		var msg ClientQuery
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.DialogueID == "" || msg.Query == "" {
			return nil, errors.New("invalid client_query")
		}
		return msg, nil
	case TypeClientCaptureControl:
		var msg ClientCaptureControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.DialogueID == "" {
			return nil, errors.New("invalid client_capture_control")
		}
		if msg.Action != CaptureActionStart && msg.Action != CaptureActionStop {
			return nil, fmt.Errorf("invalid capture action %q", msg.Action)
		}
		return msg, nil
	case TypeClientCaptureChunk:
		var msg ClientCaptureChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.DialogueID == "" || msg.PCM16Base64 == "" {
			return nil, errors.New("invalid client_capture_chunk")
		}
		return msg, nil
	case TypeClientPlaybackDone:
		var msg ClientPlaybackDone
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.DialogueID == "" || msg.ClipID == "" {
			return nil, errors.New("invalid client_playback_done")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
