package app

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"leftear-ai/internal/ai"
	"leftear-ai/internal/model"
)

var (
	ErrUnauthorized   = errors.New("session not found or not owned by user")
	ErrPresetNotFound = errors.New("preset not found")
)

const maxSearchQueryRunes = 256

type SessionStore interface {
	GetByIDAndUserID(sessionID, userID uint) (*model.Session, error)
	Touch(sessionID uint, at time.Time) error
}

type MessageStore interface {
	Create(message *model.Message) error
}

type UsageStore interface {
	IncrementExchange(userID, presetID uint) error
}

type PresetSource interface {
	Resolve(ctx context.Context, presetID uint) (*model.Preset, error)
}

// PartOffloader rewrites inline binary parts to external references,
// best-effort per part.
type PartOffloader interface {
	Offload(ctx context.Context, parts []model.ContentPart) []model.ContentPart
}

type Searcher interface {
	Query(ctx context.Context, query string) (string, error)
}

type ExchangePublisher interface {
	Publish(ctx context.Context, event model.ExchangeEvent) error
}

type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

type StreamOpener interface {
	Open(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (DeltaStream, error)
}

// NewUpstream adapts the concrete AI client to the relay's StreamOpener.
func NewUpstream(client *ai.Client) StreamOpener {
	return upstreamClient{client: client}
}

type upstreamClient struct {
	client *ai.Client
}

func (u upstreamClient) Open(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (DeltaStream, error) {
	stream, err := u.client.Open(ctx, cfg, messages)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// RelayService is the chat relay pipeline: it validates an exchange, persists
// the user's message, forwards the built context upstream and commits the
// assistant reply plus a usage increment once the stream completes with text.
type RelayService struct {
	sessions   SessionStore
	messages   MessageStore
	usage      UsageStore
	presets    PresetSource
	upstream   StreamOpener
	offloader  PartOffloader
	searcher   Searcher
	publisher  ExchangePublisher
	maxHistory int
}

func NewRelayService(
	sessions SessionStore,
	messages MessageStore,
	usage UsageStore,
	presets PresetSource,
	upstream StreamOpener,
	offloader PartOffloader,
	searcher Searcher,
	publisher ExchangePublisher,
	maxHistory int,
) *RelayService {
	if maxHistory <= 0 {
		maxHistory = 40
	}
	return &RelayService{
		sessions:   sessions,
		messages:   messages,
		usage:      usage,
		presets:    presets,
		upstream:   upstream,
		offloader:  offloader,
		searcher:   searcher,
		publisher:  publisher,
		maxHistory: maxHistory,
	}
}

type RelayInput struct {
	UserID    uint
	SessionID uint
	PresetID  uint
	Messages  []ExchangeMessage
	UseSearch bool
}

// Exchange is a prepared relay whose upstream handshake has succeeded. The
// user message is already durable by the time Prepare returns one.
type Exchange struct {
	svc        *RelayService
	input      RelayInput
	preset     *model.Preset
	stream     DeltaStream
	started    time.Time
	promptSize int
}

// Prepare runs every step that may still fail with a structured error: the
// ownership check, preset resolution, attachment offload, the unconditional
// user-message write and the upstream handshake. Errors returned here reach
// the caller before any response streaming begins.
func (s *RelayService) Prepare(ctx context.Context, input RelayInput) (*Exchange, error) {
	if input.UserID == 0 || input.SessionID == 0 || input.PresetID == 0 || len(input.Messages) == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrUnauthorized
	}

	preset, err := s.presets.Resolve(ctx, input.PresetID)
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, ErrPresetNotFound
	}

	input.Messages = trimHistory(input.Messages, s.maxHistory)
	trailing := &input.Messages[len(input.Messages)-1]

	// Only a trailing user entry produces a new row; anything else is
	// forwarded as-is so a malformed call cannot double-write.
	if trailing.Role == model.RoleUser {
		if s.offloader != nil && trailing.Content.HasInlineData() {
			trailing.Content.Parts = s.offloader.Offload(ctx, trailing.Content.Parts)
		}

		now := time.Now()
		userMessage := &model.Message{
			SessionID: input.SessionID,
			UserID:    input.UserID,
			Role:      model.RoleUser,
			Content:   trailing.Content.Encode(),
			CreatedAt: now,
		}
		if err := s.messages.Create(userMessage); err != nil {
			return nil, err
		}
		if err := s.sessions.Touch(input.SessionID, now); err != nil {
			log.Printf("touch session %d failed: %v", input.SessionID, err)
		}
	}

	augmentation := ""
	if input.UseSearch && s.searcher != nil {
		query := truncateRunes(strings.TrimSpace(trailing.Content.FirstText()), maxSearchQueryRunes)
		text, searchErr := s.searcher.Query(ctx, query)
		if searchErr != nil {
			log.Printf("search augmentation failed, continuing without it: %v", searchErr)
		} else {
			augmentation = text
		}
	}

	upstreamMessages := buildUpstreamMessages(time.Now(), preset.SystemPrompt, augmentation, input.Messages)

	stream, err := s.upstream.Open(ctx, ai.ChatConfig{
		BaseURL: preset.BaseURL,
		APIKey:  preset.APIKey,
		Model:   preset.ModelID,
	}, upstreamMessages)
	if err != nil {
		return nil, err
	}

	promptSize := 0
	for _, m := range input.Messages {
		promptSize += len(m.Content.FirstText())
	}

	return &Exchange{
		svc:        s,
		input:      input,
		preset:     preset,
		stream:     stream,
		started:    time.Now(),
		promptSize: promptSize,
	}, nil
}

// Run drives the upstream stream, forwarding each delta through onDelta the
// moment it decodes while accumulating the full reply. On clean completion
// with non-blank text it persists the assistant message, increments usage for
// (user, preset) exactly once and publishes the audit event. A canceled
// context, a mid-stream error or a blank accumulator commits nothing.
func (e *Exchange) Run(ctx context.Context, onDelta func(delta string) error) (string, error) {
	defer e.stream.Close()

	var full strings.Builder
	for {
		delta, err := e.stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return full.String(), err
		}
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
		full.WriteString(delta)
	}

	if ctx.Err() != nil {
		// Client abort: treat like an empty reply, persist nothing.
		return full.String(), ctx.Err()
	}

	text := strings.TrimSpace(full.String())
	if text == "" {
		return "", nil
	}

	now := time.Now()
	assistantMessage := &model.Message{
		SessionID: e.input.SessionID,
		UserID:    e.input.UserID,
		Role:      model.RoleAssistant,
		Content:   text,
		CreatedAt: now,
	}
	if err := e.svc.messages.Create(assistantMessage); err != nil {
		return text, err
	}
	if err := e.svc.usage.IncrementExchange(e.input.UserID, e.input.PresetID); err != nil {
		log.Printf("increment usage for user %d preset %d failed: %v", e.input.UserID, e.input.PresetID, err)
	}
	if err := e.svc.sessions.Touch(e.input.SessionID, now); err != nil {
		log.Printf("touch session %d failed: %v", e.input.SessionID, err)
	}

	if e.svc.publisher != nil {
		event := model.ExchangeEvent{
			UserID:     e.input.UserID,
			SessionID:  e.input.SessionID,
			PresetID:   e.input.PresetID,
			ModelID:    e.preset.ModelID,
			PromptSize: e.promptSize,
			ReplySize:  len(text),
			DurationMS: time.Since(e.started).Milliseconds(),
			CreatedAt:  now,
		}
		if err := e.svc.publisher.Publish(ctx, event); err != nil {
			log.Printf("publish exchange event failed: %v", err)
		}
	}

	return text, nil
}
