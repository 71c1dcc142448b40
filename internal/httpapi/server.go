package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abhishekaryan23/vaultvoice/internal/config"
	"github.com/abhishekaryan23/vaultvoice/internal/dialogue"
	"github.com/abhishekaryan23/vaultvoice/internal/observability"
	"github.com/abhishekaryan23/vaultvoice/internal/protocol"
)

type Server struct {
	cfg       config.Config
	dialogues *dialogue.Manager
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, dialogues *dialogue.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		dialogues: dialogues,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin, so another site cannot drive the user's mic if the
				// gateway is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/dialogues", s.handleCreateDialogue)
	r.Post("/v1/dialogues/{id}/end", s.handleEndDialogue)
	r.Get("/v1/dialogues/{id}/transcript", s.handleTranscript)
	r.Get("/v1/dialogues/ws", s.handleDialogueWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"active_dialogues": s.dialogues.ActiveCount(),
	})
}

type createDialogueRequest struct {
	NoteID int `json:"note_id"`
}

type createDialogueResponse struct {
	DialogueID      string    `json:"dialogue_id"`
	NoteID          int       `json:"note_id"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateDialogue(w http.ResponseWriter, r *http.Request) {
	var req createDialogueRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.NoteID < 0 {
		respondError(w, http.StatusBadRequest, "invalid_note_id", "note_id must not be negative")
		return
	}

	d := s.dialogues.Create(req.NoteID)
	respondJSON(w, http.StatusCreated, createDialogueResponse{
		DialogueID:      d.ID,
		NoteID:          d.NoteID,
		Status:          string(d.Status()),
		StartedAt:       d.StartedAt(),
		InactivityTTLMS: s.cfg.DialogueInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndDialogue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_dialogue_id", "missing dialogue id")
		return
	}
	if err := s.dialogues.End(id); err != nil {
		respondError(w, http.StatusNotFound, "dialogue_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_dialogue_id", "missing dialogue id")
		return
	}
	records, err := s.dialogues.RecentTranscript(r.Context(), id, 100)
	if err != nil {
		if errors.Is(err, dialogue.ErrNotFound) {
			respondError(w, http.StatusNotFound, "dialogue_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "transcript_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"dialogue_id": id,
		"turns":       records,
	})
}

func (s *Server) handleDialogueWS(w http.ResponseWriter, r *http.Request) {
	dialogueID := strings.TrimSpace(r.URL.Query().Get("dialogue_id"))
	if dialogueID == "" {
		respondError(w, http.StatusBadRequest, "missing_dialogue_id", "query parameter dialogue_id is required")
		return
	}

	d, err := s.dialogues.Get(dialogueID)
	if err != nil {
		respondError(w, http.StatusNotFound, "dialogue_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.DialogueEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	player := newWSPlayer(d.ID, outbound, s.cfg.PlaybackAckTimeout)
	d.AttachPlayer(player)
	defer func() {
		d.DetachPlayer()
		player.close()
	}()

	writerDone := make(chan struct{})
	go s.runWriter(ctx, cancel, conn, d, outbound, writerDone)

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendError(outbound, d.ID, "invalid_client_message", "gateway", false, err.Error())
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.dispatch(ctx, d, player, outbound, parsed)
	}

	cancel()
	<-writerDone
	s.metrics.DialogueEvents.WithLabelValues("ws_disconnected").Inc()
}

// dispatch routes one parsed client message. Backend-bound operations run in
// their own goroutine so a slow agent stream never stalls the read loop.
func (s *Server) dispatch(ctx context.Context, d *dialogue.Dialogue, player *wsPlayer, outbound chan any, parsed any) {
	switch msg := parsed.(type) {
	case protocol.ClientQuery:
		go func() {
			if err := s.dialogues.SubmitQuery(ctx, d.ID, msg.Query); err != nil {
				s.sendError(outbound, d.ID, "query_failed", "backend", true, err.Error())
			}
		}()
	case protocol.ClientCaptureControl:
		switch msg.Action {
		case protocol.CaptureActionStart:
			if err := s.dialogues.StartCapture(d.ID, msg.SampleRate, msg.Channels); err != nil {
				s.sendError(outbound, d.ID, "capture_start_failed", "gateway", false, err.Error())
				return
			}
			s.send(outbound, protocol.CaptureState{
				Type:       protocol.TypeCaptureState,
				DialogueID: d.ID,
				State:      "recording",
			})
		case protocol.CaptureActionStop:
			s.send(outbound, protocol.CaptureState{
				Type:       protocol.TypeCaptureState,
				DialogueID: d.ID,
				State:      "processing",
			})
			go func() {
				if err := s.dialogues.StopCapture(ctx, d.ID); err != nil {
					s.sendError(outbound, d.ID, "capture_stop_failed", "backend", true, err.Error())
				}
				s.send(outbound, protocol.CaptureState{
					Type:       protocol.TypeCaptureState,
					DialogueID: d.ID,
					State:      "idle",
				})
			}()
		}
	case protocol.ClientCaptureChunk:
		pcm, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
		if err != nil {
			s.sendError(outbound, d.ID, "invalid_capture_chunk", "gateway", false, "pcm16_base64 is not valid base64")
			return
		}
		if err := s.dialogues.AppendCaptureChunk(d.ID, pcm); err != nil {
			s.sendError(outbound, d.ID, "capture_chunk_rejected", "gateway", false, err.Error())
		}
	case protocol.ClientPlaybackDone:
		player.ack(msg.ClipID, msg.Error)
	}
}

// runWriter is the single websocket writer. It forwards queued outbound
// messages and re-renders dialogue state whenever the dialogue signals a
// change, deduplicating turn updates by log revision.
func (s *Server) runWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, d *dialogue.Dialogue, outbound <-chan any, done chan<- struct{}) {
	defer close(done)

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return false
		}
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
		return true
	}

	var sentRevision uint64
	syncState := func() bool {
		if rev := d.Log.Revision(); rev != sentRevision {
			sentRevision = rev
			update := protocol.TurnUpdate{
				Type:       protocol.TypeTurnUpdate,
				DialogueID: d.ID,
				Revision:   rev,
				Turns:      d.Log.Snapshot(),
			}
			if !write(update) {
				return false
			}
		}
		return write(protocol.PlaybackState{
			Type:       protocol.TypePlaybackState,
			DialogueID: d.ID,
			Playing:    d.Queue.Playing(),
			Pending:    d.Queue.Pending(),
		})
	}

	if !syncState() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound:
			if !write(msg) {
				return
			}
		case <-d.Changed():
			if !syncState() {
				return
			}
		}
	}
}

func (s *Server) send(outbound chan any, msg any) {
	select {
	case outbound <- msg:
	default:
		// Keep websocket writes single-threaded; drop if the queue is saturated.
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
		}
	}
}

func (s *Server) sendError(outbound chan any, dialogueID, code, source string, retryable bool, detail string) {
	s.send(outbound, protocol.ErrorEvent{
		Type:       protocol.TypeErrorEvent,
		DialogueID: dialogueID,
		Code:       code,
		Source:     source,
		Retryable:  retryable,
		Detail:     detail,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientQuery:
		return m.Type, true
	case protocol.ClientCaptureControl:
		return m.Type, true
	case protocol.ClientCaptureChunk:
		return m.Type, true
	case protocol.ClientPlaybackDone:
		return m.Type, true
	case protocol.TurnUpdate:
		return m.Type, true
	case protocol.PlaybackClip:
		return m.Type, true
	case protocol.PlaybackState:
		return m.Type, true
	case protocol.CaptureState:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
