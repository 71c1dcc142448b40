package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStreamTextChatSendsQueryAndReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat/pdf/42/stream" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"query":"hello"`) {
			t.Errorf("request body = %s", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"token\":\"hi\"}\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	body, err := c.StreamTextChat(context.Background(), 42, "hello")
	if err != nil {
		t.Fatalf("StreamTextChat() error = %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream body: %v", err)
	}
	if !strings.Contains(string(raw), `"token":"hi"`) {
		t.Fatalf("stream body = %q", raw)
	}
}

func TestStreamVoiceChatUploadsMultipartWAV(t *testing.T) {
	wav := []byte("RIFFfakewav")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/pdf/7/stream" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile(file) error = %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "recording.wav" {
			t.Errorf("filename = %q", header.Filename)
		}
		got, _ := io.ReadAll(file)
		if string(got) != string(wav) {
			t.Errorf("file bytes = %q", got)
		}
		_, _ = io.WriteString(w, "data: {\"query\":\"transcribed\"}\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	body, err := c.StreamVoiceChat(context.Background(), 7, wav)
	if err != nil {
		t.Fatalf("StreamVoiceChat() error = %v", err)
	}
	_ = body.Close()
}

func TestStreamErrorsOnBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "note not found", http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	_, err := c.StreamTextChat(context.Background(), 1, "q")
	if err == nil {
		t.Fatalf("StreamTextChat() on 404 should fail")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "note not found") {
		t.Fatalf("error = %v, want status and body excerpt", err)
	}
}

func TestVoiceCommandDecodesResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/command" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("FormFile(file) error = %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"response":"done","intent":"SEARCH","query":"milk","search_results":[{"id":1}],"audio":"QUJD"}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	res, err := c.VoiceCommand(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("VoiceCommand() error = %v", err)
	}
	if res.Response != "done" || res.Intent != "SEARCH" || res.Query != "milk" {
		t.Fatalf("result = %+v", res)
	}
	if len(res.SearchResults) != 1 {
		t.Fatalf("search results = %d, want 1", len(res.SearchResults))
	}
	if res.AudioBase64 != "QUJD" {
		t.Fatalf("audio = %q", res.AudioBase64)
	}
}

func TestTextCommandPostsFormField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if got := r.FormValue("text"); got != "add milk to my list" {
			t.Errorf("text field = %q", got)
		}
		_, _ = io.WriteString(w, `{"response":"added"}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	res, err := c.TextCommand(context.Background(), "add milk to my list")
	if err != nil {
		t.Fatalf("TextCommand() error = %v", err)
	}
	if res.Response != "added" {
		t.Fatalf("response = %q", res.Response)
	}
}
