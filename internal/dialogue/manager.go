package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhishekaryan23/vaultvoice/internal/backend"
	"github.com/abhishekaryan23/vaultvoice/internal/capture"
	"github.com/abhishekaryan23/vaultvoice/internal/conversation"
	"github.com/abhishekaryan23/vaultvoice/internal/observability"
	"github.com/abhishekaryan23/vaultvoice/internal/playback"
	"github.com/abhishekaryan23/vaultvoice/internal/stream"
	"github.com/abhishekaryan23/vaultvoice/internal/transcript"
)

var (
	ErrNotFound      = errors.New("dialogue not found")
	ErrEnded         = errors.New("dialogue already ended")
	ErrCaptureActive = errors.New("a capture session is already active")
	ErrNoCapture     = errors.New("no active capture session")
	ErrEmptyQuery    = errors.New("query must not be empty")
)

const transcriptSaveTimeout = 2 * time.Second

// Backend is the subset of the backend client the manager drives.
type Backend interface {
	StreamVoiceChat(ctx context.Context, noteID int, wav []byte) (io.ReadCloser, error)
	StreamTextChat(ctx context.Context, noteID int, query string) (io.ReadCloser, error)
	VoiceCommand(ctx context.Context, wav []byte) (backend.CommandResult, error)
	TextCommand(ctx context.Context, text string) (backend.CommandResult, error)
}

// Manager owns every open dialogue. Dialogues bound to a note drive the
// streaming chat endpoints; a dialogue with no note (NoteID zero) drives
// the one-shot voice command surface instead.
type Manager struct {
	backend Backend
	store   transcript.Store
	metrics *observability.Metrics

	inactivityTimeout time.Duration
	captureMaxSeconds int

	mu        sync.RWMutex
	dialogues map[string]*Dialogue
	onExpire  func(*Dialogue)
}

func NewManager(b Backend, store transcript.Store, metrics *observability.Metrics, inactivityTimeout time.Duration, captureMaxSeconds int) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	if captureMaxSeconds <= 0 {
		captureMaxSeconds = 120
	}
	return &Manager{
		backend:           b,
		store:             store,
		metrics:           metrics,
		inactivityTimeout: inactivityTimeout,
		captureMaxSeconds: captureMaxSeconds,
		dialogues:         make(map[string]*Dialogue),
	}
}

func (m *Manager) SetExpireHook(hook func(*Dialogue)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create opens a dialogue. noteID zero selects the voice command surface.
func (m *Manager) Create(noteID int) *Dialogue {
	now := time.Now().UTC()
	proxy := &playerProxy{}
	d := &Dialogue{
		ID:             uuid.NewString(),
		NoteID:         noteID,
		Log:            conversation.NewLog(),
		player:         proxy,
		status:         StatusActive,
		startedAt:      now,
		lastActivityAt: now,
		notify:         make(chan struct{}, 1),
	}
	d.Queue = playback.NewQueue(proxy)
	d.Queue.OnOutcome = func(clip playback.Clip, outcome playback.Outcome, err error) {
		m.metrics.PlaybackEvents.WithLabelValues(string(outcome)).Inc()
		if err != nil && !errors.Is(err, ErrNoPlayer) {
			log.Printf("dialogue %s: clip %s skipped: %v", d.ID, clip.ID, err)
		}
		d.signal()
	}

	m.mu.Lock()
	m.dialogues[d.ID] = d
	m.mu.Unlock()

	m.metrics.DialogueEvents.WithLabelValues("created").Inc()
	m.metrics.ActiveDialogues.Set(float64(m.ActiveCount()))
	return d
}

func (m *Manager) Get(id string) (*Dialogue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dialogues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// End closes a dialogue: an active capture is aborted (implicit stop, audio
// discarded) and the playback queue stops after its in-flight clip.
func (m *Manager) End(id string) error {
	d, err := m.Get(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.status == StatusEnded {
		d.mu.Unlock()
		return nil
	}
	d.status = StatusEnded
	session := d.capture
	d.capture = nil
	d.lastActivityAt = time.Now().UTC()
	d.mu.Unlock()

	if session != nil {
		session.Abort()
	}
	d.Queue.Close()
	d.signal()

	m.metrics.DialogueEvents.WithLabelValues("ended").Inc()
	m.metrics.ActiveDialogues.Set(float64(m.ActiveCount()))
	return nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, d := range m.dialogues {
		if d.Status() == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor ends dialogues that stay inactive past the timeout.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Dialogue

	m.mu.RLock()
	for _, d := range m.dialogues {
		if d.Status() == StatusActive && now.Sub(d.LastActivityAt()) >= m.inactivityTimeout {
			expired = append(expired, d)
		}
	}
	hook := m.onExpire
	m.mu.RUnlock()

	for _, d := range expired {
		if err := m.End(d.ID); err != nil {
			continue
		}
		m.metrics.DialogueEvents.WithLabelValues("expired").Inc()
		if hook != nil {
			hook(d)
		}
	}
}

// SubmitQuery drives one typed exchange. Note-bound dialogues use the
// streaming chat endpoint; command dialogues use the one-shot endpoint.
func (m *Manager) SubmitQuery(ctx context.Context, id, query string) error {
	if query == "" {
		return ErrEmptyQuery
	}
	d, err := m.activeDialogue(id)
	if err != nil {
		return err
	}
	d.touch()

	if d.NoteID == 0 {
		res, err := m.backend.TextCommand(ctx, query)
		if err != nil {
			return err
		}
		m.applyCommand(ctx, d, query, res)
		return nil
	}

	// The text chat stream carries only tokens, so the exchange pair is
	// appended locally before the stream opens.
	d.Log.AppendExchange(query)
	d.signal()

	body, err := m.backend.StreamTextChat(ctx, d.NoteID, query)
	if err != nil {
		return err
	}
	defer body.Close()
	return m.ingest(ctx, d, body, time.Now())
}

// StartCapture opens the dialogue's single capture session. The UI enforces
// the record-toggle; this guard backs it up.
func (m *Manager) StartCapture(id string, sampleRate, channels int) error {
	d, err := m.activeDialogue(id)
	if err != nil {
		return err
	}
	if sampleRate <= 0 {
		sampleRate = capture.TargetSampleRate
	}
	if channels <= 0 {
		channels = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture != nil {
		return ErrCaptureActive
	}
	maxBytes := sampleRate * 2 * channels * m.captureMaxSeconds
	d.capture = capture.NewSession(
		capture.PCM16Decoder{SampleRate: sampleRate, Channels: channels},
		func() { m.metrics.DialogueEvents.WithLabelValues("capture_released").Inc() },
		maxBytes,
	)
	d.lastActivityAt = time.Now().UTC()
	m.metrics.DialogueEvents.WithLabelValues("capture_started").Inc()
	d.signal()
	return nil
}

// AppendCaptureChunk buffers one raw fragment into the active session.
func (m *Manager) AppendCaptureChunk(id string, pcm []byte) error {
	d, err := m.activeDialogue(id)
	if err != nil {
		return err
	}
	d.mu.Lock()
	session := d.capture
	d.mu.Unlock()
	if session == nil {
		return ErrNoCapture
	}
	return session.Append(pcm)
}

// StopCapture finalizes the session into a WAV container and submits it.
func (m *Manager) StopCapture(ctx context.Context, id string) error {
	d, err := m.activeDialogue(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	session := d.capture
	d.capture = nil
	d.lastActivityAt = time.Now().UTC()
	d.mu.Unlock()
	if session == nil {
		return ErrNoCapture
	}
	d.signal()

	finalizeStart := time.Now()
	wav, err := session.Stop()
	m.metrics.ObserveCaptureFinalize(time.Since(finalizeStart))
	if err != nil {
		return fmt.Errorf("finalize capture: %w", err)
	}

	if d.NoteID == 0 {
		res, err := m.backend.VoiceCommand(ctx, wav)
		if err != nil {
			return err
		}
		queryText := res.Query
		if queryText == "" {
			queryText = "(voice command)"
		}
		m.applyCommand(ctx, d, queryText, res)
		return nil
	}

	body, err := m.backend.StreamVoiceChat(ctx, d.NoteID, wav)
	if err != nil {
		return err
	}
	defer body.Close()
	// The voice stream opens with its own query frame carrying the
	// transcription, so no local exchange pair is appended here.
	return m.ingest(ctx, d, body, time.Now())
}

// ingest consumes one agent stream, applying frames to the log and routing
// audio into the playback queue. State applied before a transport failure
// stays applied.
func (m *Manager) ingest(ctx context.Context, d *Dialogue, body io.Reader, submittedAt time.Time) error {
	in := &stream.Ingestor{
		OnMalformed: func(string) { m.metrics.FrameParseFailures.Inc() },
	}

	sawToken := false
	err := in.Consume(ctx, body, func(f stream.Frame) error {
		m.metrics.Frames.WithLabelValues(string(f.Kind)).Inc()
		switch f.Kind {
		case stream.KindAudio:
			d.Queue.Push(playback.Clip{
				ID:          uuid.NewString(),
				AudioBase64: f.AudioBase64,
				Format:      "wav",
			})
		default:
			if f.Kind == stream.KindToken && !sawToken {
				sawToken = true
				m.metrics.ObserveFirstTokenLatency(time.Since(submittedAt))
			}
			d.Log.Apply(f)
		}
		d.signal()
		return nil
	})
	if err != nil {
		return fmt.Errorf("ingest agent stream: %w", err)
	}

	d.touch()
	m.saveExchange(ctx, d)
	return nil
}

// applyCommand records a one-shot command exchange and queues its reply audio.
func (m *Manager) applyCommand(ctx context.Context, d *Dialogue, query string, res backend.CommandResult) {
	d.Log.AppendExchange(query)
	d.Log.AppendToken(res.Response)
	if res.AudioBase64 != "" {
		d.Queue.Push(playback.Clip{
			ID:          uuid.NewString(),
			AudioBase64: res.AudioBase64,
			Format:      "wav",
		})
	}
	d.touch()
	d.signal()
	m.saveExchange(ctx, d)
}

// saveExchange persists the final (user, agent) pair. Persistence is
// best-effort; a store failure never disturbs the live dialogue.
func (m *Manager) saveExchange(ctx context.Context, d *Dialogue) {
	user, agent, ok := d.Log.LastExchange()
	if !ok {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptSaveTimeout)
	defer cancel()
	for _, turn := range []conversation.Turn{user, agent} {
		record := transcript.TurnRecord{
			ID:         turn.ID,
			DialogueID: d.ID,
			NoteID:     d.NoteID,
			Role:       string(turn.Role),
			Content:    turn.Content,
			Verified:   turn.Verified,
			Correction: turn.Correction,
		}
		if err := m.store.SaveTurn(saveCtx, record); err != nil {
			log.Printf("dialogue %s: transcript save failed: %v", d.ID, err)
			return
		}
	}
}

// RecentTranscript returns persisted turns for a dialogue.
func (m *Manager) RecentTranscript(ctx context.Context, id string, limit int) ([]transcript.TurnRecord, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.store.RecentTurns(ctx, id, limit)
}

func (m *Manager) activeDialogue(id string) (*Dialogue, error) {
	d, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status() != StatusActive {
		return nil, ErrEnded
	}
	return d, nil
}
