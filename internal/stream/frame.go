package stream

import "encoding/json"

// Kind identifies a logical frame extracted from the agent stream.
type Kind string

const (
	KindQuery        Kind = "query"
	KindToken        Kind = "token"
	KindAudio        Kind = "audio"
	KindVerification Kind = "verification"
)

// Frame is one tagged event extracted from a stream record.
type Frame struct {
	Kind        Kind
	Text        string // query text or token fragment
	AudioBase64 string
	Verified    bool
	Correction  string
}

// Classify probes a loosely typed record for known keys and returns the
// logical frames it carries, in priority order. A single record may
// legitimately produce more than one frame; key presence is the only
// discriminant the agent stream offers, so all re-inspection of raw keys
// lives here.
func Classify(record map[string]json.RawMessage) []Frame {
	var frames []Frame

	if s, ok := stringField(record, "query"); ok && s != "" {
		frames = append(frames, Frame{Kind: KindQuery, Text: s})
	}
	if s, ok := stringField(record, "token"); ok && s != "" {
		frames = append(frames, Frame{Kind: KindToken, Text: s})
	}
	if s, ok := stringField(record, "audio"); ok && s != "" {
		frames = append(frames, Frame{Kind: KindAudio, AudioBase64: s})
	}

	typ, _ := stringField(record, "type")
	verifiedRaw, hasVerified := record["verified"]
	if typ == "verification" || hasVerified {
		f := Frame{Kind: KindVerification}
		if hasVerified {
			// Non-bool values (null included) read as unverified.
			_ = json.Unmarshal(verifiedRaw, &f.Verified)
		}
		if s, ok := stringField(record, "correction"); ok {
			f.Correction = s
		}
		frames = append(frames, f)
	}

	return frames
}

func stringField(record map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := record[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
