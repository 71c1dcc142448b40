package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhishekaryan23/vaultvoice/internal/backend"
	"github.com/abhishekaryan23/vaultvoice/internal/config"
	"github.com/abhishekaryan23/vaultvoice/internal/dialogue"
	"github.com/abhishekaryan23/vaultvoice/internal/observability"
	"github.com/abhishekaryan23/vaultvoice/internal/protocol"
	"github.com/abhishekaryan23/vaultvoice/internal/transcript"
)

type scriptedBackend struct {
	streamBody string
}

func (b *scriptedBackend) StreamVoiceChat(ctx context.Context, noteID int, wav []byte) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.streamBody)), nil
}

func (b *scriptedBackend) StreamTextChat(ctx context.Context, noteID int, query string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.streamBody)), nil
}

func (b *scriptedBackend) VoiceCommand(ctx context.Context, wav []byte) (backend.CommandResult, error) {
	return backend.CommandResult{}, nil
}

func (b *scriptedBackend) TextCommand(ctx context.Context, text string) (backend.CommandResult, error) {
	return backend.CommandResult{Response: text}, nil
}

func newTestServer(t *testing.T, namespace, streamBody string) (*httptest.Server, *dialogue.Manager) {
	t.Helper()
	cfg := config.Config{
		DialogueInactivityTimeout: 2 * time.Minute,
		PlaybackAckTimeout:        2 * time.Second,
	}
	metrics := observability.NewMetrics(namespace)
	manager := dialogue.NewManager(&scriptedBackend{streamBody: streamBody}, transcript.NewInMemoryStore(), metrics, cfg.DialogueInactivityTimeout, 10)
	srv := New(cfg, manager, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, manager
}

func TestCreateAndEndDialogue(t *testing.T) {
	ts, _ := newTestServer(t, "test_httpapi_"+time.Now().Format("150405000000000"), "")

	body, _ := json.Marshal(map[string]int{"note_id": 3})
	res, err := http.Post(ts.URL+"/v1/dialogues", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create dialogue request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	dialogueID, _ := created["dialogue_id"].(string)
	if dialogueID == "" {
		t.Fatalf("missing dialogue_id in create response: %+v", created)
	}
	if created["note_id"] != float64(3) {
		t.Fatalf("note_id = %v, want 3", created["note_id"])
	}

	endRes, err := http.Post(ts.URL+"/v1/dialogues/"+dialogueID+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end dialogue request error = %v", err)
	}
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}

	missingRes, err := http.Post(ts.URL+"/v1/dialogues/nope/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end missing dialogue request error = %v", err)
	}
	defer missingRes.Body.Close()
	if missingRes.StatusCode != http.StatusNotFound {
		t.Fatalf("end missing status = %d, want %d", missingRes.StatusCode, http.StatusNotFound)
	}
}

func TestTranscriptUnknownDialogue(t *testing.T) {
	ts, _ := newTestServer(t, "test_httpapi_tx_"+time.Now().Format("150405000000000"), "")

	res, err := http.Get(ts.URL + "/v1/dialogues/missing/transcript")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestDialogueWSQueryFlow(t *testing.T) {
	stream := "data: {\"token\":\"Blue, \"}\n\ndata: {\"token\":\"mostly.\"}\n\n"
	ts, manager := newTestServer(t, "test_httpapi_ws_"+time.Now().Format("150405000000000"), stream)
	d := manager.Create(9)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/dialogues/ws?dialogue_id=" + d.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()

	query := protocol.ClientQuery{
		Type:       protocol.TypeClientQuery,
		DialogueID: d.ID,
		Query:      "what color is the sky",
	}
	if err := conn.WriteJSON(query); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	sawPlaybackState := false
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		switch msg["type"] {
		case string(protocol.TypePlaybackState):
			sawPlaybackState = true
		case string(protocol.TypeTurnUpdate):
			turns, _ := msg["turns"].([]any)
			if len(turns) != 2 {
				continue
			}
			agent, _ := turns[1].(map[string]any)
			if agent["content"] == "Blue, mostly." {
				if !sawPlaybackState {
					t.Fatalf("no playback_state before final turn_update")
				}
				return
			}
		case string(protocol.TypeErrorEvent):
			t.Fatalf("unexpected error event: %+v", msg)
		}
	}
	t.Fatalf("never saw the completed agent turn")
}

func TestDialogueWSInvalidMessage(t *testing.T) {
	ts, manager := newTestServer(t, "test_httpapi_wsbad_"+time.Now().Format("150405000000000"), "")
	d := manager.Create(1)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/dialogues/ws?dialogue_id=" + d.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg["type"] == string(protocol.TypeErrorEvent) {
			if msg["code"] != "invalid_client_message" {
				t.Fatalf("error code = %v", msg["code"])
			}
			return
		}
	}
	t.Fatalf("never saw the error event")
}

func TestDialogueWSRequiresKnownDialogue(t *testing.T) {
	ts, _ := newTestServer(t, "test_httpapi_wsmiss_"+time.Now().Format("150405000000000"), "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/dialogues/ws?dialogue_id=missing"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial to unknown dialogue should fail")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v", res)
	}
}
