// Package backend is the HTTP client for the memory-journal backend. The
// backend owns transcription, retrieval and answer generation; this side
// only ships audio/text up and consumes what comes back.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// CommandResult is the one-shot voice command response.
type CommandResult struct {
	Response      string            `json:"response"`
	Intent        string            `json:"intent,omitempty"`
	Query         string            `json:"query,omitempty"`
	SearchResults []json.RawMessage `json:"search_results,omitempty"`
	AudioBase64   string            `json:"audio,omitempty"`
}

// Client talks to the backend at a fixed base URL.
type Client struct {
	baseURL string
	// Streaming responses stay open for the life of a dialogue turn, so the
	// stream client carries no overall timeout; cancellation comes from ctx.
	streamClient  *http.Client
	commandClient *http.Client
}

func NewClient(baseURL string, commandTimeout time.Duration) *Client {
	if commandTimeout <= 0 {
		commandTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		streamClient:  &http.Client{},
		commandClient: &http.Client{Timeout: commandTimeout},
	}
}

// StreamVoiceChat submits a finished WAV container against a note and
// returns the streaming response body. The caller owns closing it.
func (c *Client) StreamVoiceChat(ctx context.Context, noteID int, wav []byte) (io.ReadCloser, error) {
	body, contentType, err := wavForm(wav)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/voice/pdf/%d/stream", c.baseURL, noteID)
	return c.openStream(ctx, endpoint, contentType, body)
}

// StreamTextChat submits a typed query against a note and returns the
// streaming response body.
func (c *Client) StreamTextChat(ctx context.Context, noteID int, query string) (io.ReadCloser, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	endpoint := fmt.Sprintf("%s/api/chat/pdf/%d/stream", c.baseURL, noteID)
	return c.openStream(ctx, endpoint, "application/json", bytes.NewReader(payload))
}

// VoiceCommand submits a finished WAV container to the command endpoint.
func (c *Client) VoiceCommand(ctx context.Context, wav []byte) (CommandResult, error) {
	body, contentType, err := wavForm(wav)
	if err != nil {
		return CommandResult{}, err
	}
	return c.command(ctx, contentType, body)
}

// TextCommand submits a text-origin command to the same endpoint.
func (c *Client) TextCommand(ctx context.Context, text string) (CommandResult, error) {
	form := url.Values{"text": {text}}
	return c.command(ctx, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *Client) openStream(ctx context.Context, endpoint, contentType string, body io.Reader) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, fmt.Errorf("backend status %d: %s", res.StatusCode, string(excerpt))
	}
	return res.Body, nil
}

func (c *Client) command(ctx context.Context, contentType string, body io.Reader) (CommandResult, error) {
	endpoint := c.baseURL + "/api/voice/command"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return CommandResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.commandClient.Do(req)
	if err != nil {
		return CommandResult{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return CommandResult{}, fmt.Errorf("backend status %d: %s", res.StatusCode, string(excerpt))
	}

	var result CommandResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return CommandResult{}, fmt.Errorf("decode command response: %w", err)
	}
	return result, nil
}

// wavForm builds the multipart body the transcription endpoints expect:
// a single field named "file" carrying the WAV container.
func wavForm(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="recording.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("write wav part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
