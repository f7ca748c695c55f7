package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leftear-ai/internal/model"
)

// base64 of "hi"
const tinyPNG = "data:image/png;base64,aGk="

func TestDecodeDataURI(t *testing.T) {
	mimeType, payload, err := decodeDataURI(tinyPNG)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if mimeType != "image/png" {
		t.Errorf("mime = %q, want image/png", mimeType)
	}
	if string(payload) != "hi" {
		t.Errorf("payload = %q, want hi", payload)
	}

	if _, _, err := decodeDataURI("https://example.com/a.png"); err == nil {
		t.Error("non data uri should fail")
	}
	if _, _, err := decodeDataURI("data:image/png;base64"); err == nil {
		t.Error("missing comma should fail")
	}
	if _, _, err := decodeDataURI("data:image/png,plain"); err == nil {
		t.Error("non-base64 encoding should fail")
	}
	if _, _, err := decodeDataURI("data:image/png;base64,!!!"); err == nil {
		t.Error("invalid base64 should fail")
	}
}

func TestOffloadRewritesImagePart(t *testing.T) {
	var gotKey, gotAuth, gotMime string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotKey = strings.TrimPrefix(r.URL.Path, "/")
		gotAuth = r.Header.Get("Authorization")
		gotMime = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewOffloader(srv.URL, "https://files.example.com", "secret", 5*time.Second)
	parts := []model.ContentPart{
		{Type: model.PartTypeText, Text: "look at this"},
		{Type: model.PartTypeImage, ImageURL: &model.ImageRef{URL: tinyPNG}},
	}

	out := o.Offload(context.Background(), parts)

	if out[0].Text != "look at this" {
		t.Errorf("text part changed: %+v", out[0])
	}
	if !strings.HasPrefix(out[1].ImageURL.URL, "https://files.example.com/") {
		t.Fatalf("image not rewritten to public base: %q", out[1].ImageURL.URL)
	}
	if !strings.HasSuffix(out[1].ImageURL.URL, ".png") {
		t.Errorf("rewritten url missing extension: %q", out[1].ImageURL.URL)
	}
	if !strings.HasSuffix(out[1].ImageURL.URL, gotKey) {
		t.Errorf("public url %q does not end with uploaded key %q", out[1].ImageURL.URL, gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotMime != "image/png" {
		t.Errorf("content type = %q", gotMime)
	}
	if string(gotBody) != "hi" {
		t.Errorf("uploaded body = %q", gotBody)
	}
	// Input slice must stay untouched.
	if parts[1].ImageURL.URL != tinyPNG {
		t.Error("Offload mutated its input")
	}
}

func TestOffloadUploadFailureKeepsPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	o := NewOffloader(srv.URL, "", "", 5*time.Second)
	parts := []model.ContentPart{
		{Type: model.PartTypeImage, ImageURL: &model.ImageRef{URL: tinyPNG}},
	}

	out := o.Offload(context.Background(), parts)
	if out[0].ImageURL.URL != tinyPNG {
		t.Fatalf("failed upload must keep the inline payload, got %q", out[0].ImageURL.URL)
	}
}

func TestOffloadSkipsNonInlineParts(t *testing.T) {
	o := NewOffloader("https://store.example.com", "", "", 0)
	parts := []model.ContentPart{
		{Type: model.PartTypeImage, ImageURL: &model.ImageRef{URL: "https://already.example.com/a.png"}},
		{Type: model.PartTypeImage},
	}
	out := o.Offload(context.Background(), parts)
	if out[0].ImageURL.URL != "https://already.example.com/a.png" {
		t.Error("remote reference should pass through unchanged")
	}
	if out[1].ImageURL != nil {
		t.Error("nil image ref should pass through unchanged")
	}
}

func TestOffloadDisabledIsPassThrough(t *testing.T) {
	o := NewOffloader("", "", "", 0)
	if o.Enabled() {
		t.Fatal("empty endpoint should disable offloading")
	}
	parts := []model.ContentPart{
		{Type: model.PartTypeImage, ImageURL: &model.ImageRef{URL: tinyPNG}},
	}
	out := o.Offload(context.Background(), parts)
	if out[0].ImageURL.URL != tinyPNG {
		t.Fatal("disabled offloader must not touch parts")
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"application/pdf": ".bin",
	}
	for mimeType, want := range cases {
		if got := extensionFor(mimeType); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", mimeType, got, want)
		}
	}
}
