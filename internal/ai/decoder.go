package ai

import (
	"bytes"
	"encoding/json"
	"strings"
)

const streamDoneSentinel = "[DONE]"

// EventDecoder turns a raw SSE byte stream into text deltas. It is push-based:
// feed it arbitrary chunks and it reassembles lines across chunk boundaries,
// so splitting the stream differently never changes the decoded output.
// The only state held is the current partial line.
type EventDecoder struct {
	buf  bytes.Buffer
	done bool
}

func NewEventDecoder() *EventDecoder {
	return &EventDecoder{}
}

// Feed consumes the next chunk and returns the deltas completed by it.
// Frames that fail to parse are skipped; decoding never aborts on one bad frame.
func (d *EventDecoder) Feed(chunk []byte) []string {
	if d.done || len(chunk) == 0 {
		return nil
	}
	d.buf.Write(chunk)

	var deltas []string
	for {
		raw := d.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := string(raw[:idx])
		d.buf.Next(idx + 1)

		delta, isDone := decodeLine(line)
		if isDone {
			d.done = true
			break
		}
		if delta != "" {
			deltas = append(deltas, delta)
		}
	}
	return deltas
}

// Flush decodes a trailing unterminated line, if any. Call once at stream end.
func (d *EventDecoder) Flush() []string {
	if d.done || d.buf.Len() == 0 {
		return nil
	}
	line := d.buf.String()
	d.buf.Reset()

	delta, isDone := decodeLine(line)
	if isDone {
		d.done = true
		return nil
	}
	if delta == "" {
		return nil
	}
	return []string{delta}
}

// Done reports whether the upstream completion sentinel was seen.
func (d *EventDecoder) Done() bool {
	return d.done
}

func decodeLine(line string) (delta string, done bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == streamDoneSentinel {
		return "", true
	}
	return extractDelta(payload), false
}

// extractDelta pulls the text delta out of a frame body. Upstreams emit two
// shapes: the chat-completions chunk with choices[0].delta.content, and a flat
// {"content": ...} object. Try the nested shape first, fall back to the flat
// one, else skip the frame.
func extractDelta(payload string) string {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		return chunk.Choices[0].Delta.Content
	}
	return chunk.Content
}
