package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTemperature = 0.7

type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// UpstreamError carries a non-success handshake verbatim so the caller can
// forward the upstream body to the client.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CompletionsURL normalizes a preset endpoint: one trailing slash is stripped,
// and the default completions path is appended unless the URL already
// references one. Presets may therefore store a bare host or a full custom path.
func CompletionsURL(baseURL string) string {
	url := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(url, "/chat/completions") {
		url += "/v1/chat/completions"
	}
	return url
}

// Open performs the streaming handshake. A non-success status is returned as
// *UpstreamError with the full response body; network failures propagate as-is.
// No retries here: retry policy belongs to the caller.
func (c *Client) Open(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (*Stream, error) {
	reqBody := map[string]interface{}{
		"model":       cfg.Model,
		"messages":    messages,
		"temperature": defaultTemperature,
		"stream":      true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, CompletionsURL(cfg.BaseURL), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build upstream request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return &Stream{
		body:    resp.Body,
		decoder: NewEventDecoder(),
	}, nil
}

// Stream is a forward-only reader of text deltas. It is not restartable.
type Stream struct {
	body    io.ReadCloser
	decoder *EventDecoder
	pending []string
	readBuf [4096]byte
	eof     bool
}

// Recv returns the next delta, io.EOF at stream end, or the read error that
// cut the stream short.
func (s *Stream) Recv() (string, error) {
	for {
		if len(s.pending) > 0 {
			delta := s.pending[0]
			s.pending = s.pending[1:]
			return delta, nil
		}
		if s.eof || s.decoder.Done() {
			return "", io.EOF
		}

		n, err := s.body.Read(s.readBuf[:])
		if n > 0 {
			s.pending = s.decoder.Feed(s.readBuf[:n])
		}
		if err == io.EOF {
			s.eof = true
			s.pending = append(s.pending, s.decoder.Flush()...)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read upstream stream failed: %w", err)
		}
	}
}

func (s *Stream) Close() error {
	return s.body.Close()
}
