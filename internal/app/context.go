package app

import (
	"strings"
	"time"

	"leftear-ai/internal/ai"
	"leftear-ai/internal/model"
)

// ExchangeMessage is one entry of the client-supplied history, trailing user
// message included.
type ExchangeMessage struct {
	Role    string               `json:"role"`
	Content model.MessageContent `json:"content"`
}

// buildUpstreamMessages assembles the outbound message list in fixed priority
// order: time context, persona, search augmentation, prior history, trailing
// user entry. Time and persona anchor every turn; augmentation is turn-specific
// and sits ahead of the conversation it informs.
func buildUpstreamMessages(now time.Time, persona, augmentation string, history []ExchangeMessage) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(history)+3)

	messages = append(messages, ai.ChatMessage{
		Role:    model.RoleSystem,
		Content: "Current date and time: " + now.Format("Monday, January 2, 2006, 15:04 (MST)") + ".",
	})

	if p := strings.TrimSpace(persona); p != "" {
		messages = append(messages, ai.ChatMessage{
			Role:    model.RoleSystem,
			Content: p,
		})
	}

	if a := strings.TrimSpace(augmentation); a != "" {
		messages = append(messages, ai.ChatMessage{
			Role:    model.RoleSystem,
			Content: "Web search results relevant to the user's latest message:\n\n" + a + "\n\nUse this information where it helps and prefer it for anything recent.",
		})
	}

	for _, m := range history {
		role := m.Role
		if role == "" {
			role = model.RoleUser
		}
		messages = append(messages, ai.ChatMessage{
			Role:    role,
			Content: m.Content.Payload(),
		})
	}

	return messages
}

// trimHistory keeps the most recent max entries. The trailing user message is
// always among them.
func trimHistory(history []ExchangeMessage, max int) []ExchangeMessage {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
