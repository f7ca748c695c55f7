package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"leftear-ai/internal/model"
)

// Offloader moves inline data-URI payloads out of message content and into an
// object store, rewriting image parts to stable public URLs. Every part is
// best-effort: a failed upload leaves that part untouched and never affects
// its siblings.
type Offloader struct {
	endpoint      string
	publicBaseURL string
	authToken     string
	httpClient    *http.Client
}

func NewOffloader(endpoint, publicBaseURL, authToken string, timeout time.Duration) *Offloader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Offloader{
		endpoint:      strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		authToken:     authToken,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an object store is configured. When false, Offload
// is a pass-through.
func (o *Offloader) Enabled() bool {
	return o.endpoint != ""
}

func (o *Offloader) Offload(ctx context.Context, parts []model.ContentPart) []model.ContentPart {
	if !o.Enabled() || len(parts) == 0 {
		return parts
	}

	out := make([]model.ContentPart, len(parts))
	copy(out, parts)
	for i, p := range out {
		if p.Type != model.PartTypeImage || p.ImageURL == nil {
			continue
		}
		if !strings.HasPrefix(p.ImageURL.URL, "data:") {
			continue
		}
		publicURL, err := o.upload(ctx, p.ImageURL.URL)
		if err != nil {
			log.Printf("offload image part failed, keeping inline payload: %v", err)
			continue
		}
		out[i].ImageURL = &model.ImageRef{URL: publicURL}
	}
	return out
}

func (o *Offloader) upload(ctx context.Context, dataURI string) (string, error) {
	mimeType, payload, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}

	key := uuid.NewString() + extensionFor(mimeType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, o.endpoint+"/"+key, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build upload request failed: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	if o.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.authToken)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, string(raw))
	}

	base := o.publicBaseURL
	if base == "" {
		base = o.endpoint
	}
	return base + "/" + key, nil
}

func decodeDataURI(dataURI string) (mimeType string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("unsupported data uri encoding")
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	payload, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri payload failed: %w", err)
	}
	return mimeType, payload, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
