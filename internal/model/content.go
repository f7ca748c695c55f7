package model

import (
	"encoding/json"
	"strings"
)

const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

type ImageRef struct {
	URL string `json:"url"`
}

// ContentPart is one typed element of a multi-part message payload,
// matching the chat-completions wire shape.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// MessageContent is either a plain string or an ordered list of typed parts.
// Clients may send both shapes; both round-trip through JSON unchanged.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// Payload returns the value to place in a chat-completions "content" field.
func (c MessageContent) Payload() interface{} {
	if c.Parts != nil {
		return c.Parts
	}
	return c.Text
}

// FirstText returns the plain text, or the first text part for multi-part content.
func (c MessageContent) FirstText() string {
	if c.Parts == nil {
		return c.Text
	}
	for _, p := range c.Parts {
		if p.Type == PartTypeText && strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	}
	return ""
}

// HasInlineData reports whether any image part still carries a data URI payload.
func (c MessageContent) HasInlineData() bool {
	for _, p := range c.Parts {
		if p.Type == PartTypeImage && p.ImageURL != nil && strings.HasPrefix(p.ImageURL.URL, "data:") {
			return true
		}
	}
	return false
}

// Encode serializes the content for the messages.content text column:
// plain text stays as-is, multi-part content is stored as its JSON array.
func (c MessageContent) Encode() string {
	if c.Parts == nil {
		return c.Text
	}
	raw, err := json.Marshal(c.Parts)
	if err != nil {
		return c.FirstText()
	}
	return string(raw)
}
