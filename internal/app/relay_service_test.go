package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"leftear-ai/internal/ai"
	"leftear-ai/internal/model"
)

type fakeSessionStore struct {
	session *model.Session
	touched int
}

func (f *fakeSessionStore) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	if f.session != nil && f.session.ID == sessionID && f.session.UserID == userID {
		return f.session, nil
	}
	return nil, nil
}

func (f *fakeSessionStore) Touch(sessionID uint, at time.Time) error {
	f.touched++
	return nil
}

type fakeMessageStore struct {
	created []model.Message
}

func (f *fakeMessageStore) Create(message *model.Message) error {
	f.created = append(f.created, *message)
	return nil
}

func (f *fakeMessageStore) byRole(role string) []model.Message {
	var out []model.Message
	for _, m := range f.created {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fakeUsageStore struct {
	increments int
}

func (f *fakeUsageStore) IncrementExchange(userID, presetID uint) error {
	f.increments++
	return nil
}

type fakePresetSource struct {
	preset *model.Preset
}

func (f *fakePresetSource) Resolve(ctx context.Context, presetID uint) (*model.Preset, error) {
	if f.preset != nil && f.preset.ID == presetID {
		return f.preset, nil
	}
	return nil, nil
}

type fakeStream struct {
	deltas []string
	err    error
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	if len(f.deltas) > 0 {
		d := f.deltas[0]
		f.deltas = f.deltas[1:]
		return d, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	stream      *fakeStream
	err         error
	gotCfg      ai.ChatConfig
	gotMessages []ai.ChatMessage
}

func (f *fakeOpener) Open(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (DeltaStream, error) {
	f.gotCfg = cfg
	f.gotMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeSearcher struct {
	result   string
	err      error
	gotQuery string
}

func (f *fakeSearcher) Query(ctx context.Context, query string) (string, error) {
	f.gotQuery = query
	return f.result, f.err
}

type fakePublisher struct {
	events []model.ExchangeEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event model.ExchangeEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeOffloader struct {
	calls int
}

func (f *fakeOffloader) Offload(ctx context.Context, parts []model.ContentPart) []model.ContentPart {
	f.calls++
	out := make([]model.ContentPart, len(parts))
	copy(out, parts)
	for i := range out {
		if out[i].Type == model.PartTypeImage {
			out[i].ImageURL = &model.ImageRef{URL: "https://files.example.com/rewritten.png"}
		}
	}
	return out
}

type relayFixture struct {
	svc       *RelayService
	sessions  *fakeSessionStore
	messages  *fakeMessageStore
	usage     *fakeUsageStore
	opener    *fakeOpener
	searcher  *fakeSearcher
	publisher *fakePublisher
	offloader *fakeOffloader
}

func newRelayFixture(stream *fakeStream) *relayFixture {
	f := &relayFixture{
		sessions:  &fakeSessionStore{session: &model.Session{ID: 7, UserID: 1, PresetID: 3}},
		messages:  &fakeMessageStore{},
		usage:     &fakeUsageStore{},
		opener:    &fakeOpener{stream: stream},
		searcher:  &fakeSearcher{},
		publisher: &fakePublisher{},
		offloader: &fakeOffloader{},
	}
	preset := &fakePresetSource{preset: &model.Preset{ID: 3, Name: "Test", BaseURL: "https://up.example.com", APIKey: "k", ModelID: "m-1", SystemPrompt: "persona"}}
	f.svc = NewRelayService(f.sessions, f.messages, f.usage, preset, f.opener, f.offloader, f.searcher, f.publisher, 40)
	return f
}

func validInput() RelayInput {
	return RelayInput{
		UserID:    1,
		SessionID: 7,
		PresetID:  3,
		Messages:  []ExchangeMessage{textMessage(model.RoleUser, "hello")},
	}
}

func TestPrepareRejectsInvalidInput(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	cases := []RelayInput{
		{},
		{UserID: 1, SessionID: 7, PresetID: 3},
		{UserID: 1, PresetID: 3, Messages: []ExchangeMessage{textMessage(model.RoleUser, "x")}},
	}
	for i, input := range cases {
		if _, err := f.svc.Prepare(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if len(f.messages.created) != 0 {
		t.Fatal("invalid input must not persist anything")
	}
}

func TestPrepareRejectsForeignSession(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	input := validInput()
	input.UserID = 99

	if _, err := f.svc.Prepare(context.Background(), input); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(f.messages.created) != 0 {
		t.Fatal("ownership failure must not persist anything")
	}
}

func TestPrepareRejectsUnknownPreset(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	input := validInput()
	input.PresetID = 404

	if _, err := f.svc.Prepare(context.Background(), input); !errors.Is(err, ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestPrepareUserMessageSurvivesHandshakeFailure(t *testing.T) {
	f := newRelayFixture(nil)
	f.opener.err = &ai.UpstreamError{StatusCode: 503, Body: "down"}

	_, err := f.svc.Prepare(context.Background(), validInput())
	var upstreamErr *ai.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected *ai.UpstreamError, got %v", err)
	}

	users := f.messages.byRole(model.RoleUser)
	if len(users) != 1 {
		t.Fatalf("user message must be durable before the handshake, got %d rows", len(users))
	}
	if users[0].Content != "hello" {
		t.Errorf("persisted content = %q, want hello", users[0].Content)
	}
	if len(f.messages.byRole(model.RoleAssistant)) != 0 {
		t.Fatal("no assistant row on handshake failure")
	}
}

func TestPrepareSkipsPersistForNonUserTrailing(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	input := validInput()
	input.Messages = []ExchangeMessage{
		textMessage(model.RoleUser, "hi"),
		textMessage(model.RoleAssistant, "hello back"),
	}

	if _, err := f.svc.Prepare(context.Background(), input); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(f.messages.created) != 0 {
		t.Fatalf("non-user trailing entry must not create rows, got %d", len(f.messages.created))
	}
}

func TestPrepareUsesPresetConfigAndPersona(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	if _, err := f.svc.Prepare(context.Background(), validInput()); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if f.opener.gotCfg.BaseURL != "https://up.example.com" || f.opener.gotCfg.APIKey != "k" || f.opener.gotCfg.Model != "m-1" {
		t.Errorf("upstream config not taken from preset: %+v", f.opener.gotCfg)
	}
	if len(f.opener.gotMessages) < 3 {
		t.Fatalf("expected time + persona + history, got %d messages", len(f.opener.gotMessages))
	}
	if f.opener.gotMessages[1].Content != "persona" {
		t.Errorf("persona not forwarded: %+v", f.opener.gotMessages[1])
	}
}

func TestPrepareSearchAugmentation(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	f.searcher.result = "1. Example — snippet (https://example.com)"
	input := validInput()
	input.UseSearch = true

	if _, err := f.svc.Prepare(context.Background(), input); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if f.searcher.gotQuery != "hello" {
		t.Errorf("search query = %q, want hello", f.searcher.gotQuery)
	}

	found := false
	for _, m := range f.opener.gotMessages {
		if s, ok := m.Content.(string); ok && strings.Contains(s, "snippet") {
			found = true
		}
	}
	if !found {
		t.Fatal("augmentation missing from upstream messages")
	}
}

func TestPrepareSearchFailureIsNonFatal(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	f.searcher.err = errors.New("search backend down")
	input := validInput()
	input.UseSearch = true

	if _, err := f.svc.Prepare(context.Background(), input); err != nil {
		t.Fatalf("search failure must not fail the exchange: %v", err)
	}
}

func TestPrepareOffloadsInlineData(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	input := validInput()
	input.Messages = []ExchangeMessage{{
		Role: model.RoleUser,
		Content: model.MessageContent{Parts: []model.ContentPart{
			{Type: model.PartTypeText, Text: "look"},
			{Type: model.PartTypeImage, ImageURL: &model.ImageRef{URL: "data:image/png;base64,aGk="}},
		}},
	}}

	if _, err := f.svc.Prepare(context.Background(), input); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if f.offloader.calls != 1 {
		t.Fatalf("offloader calls = %d, want 1", f.offloader.calls)
	}
	users := f.messages.byRole(model.RoleUser)
	if len(users) != 1 || !strings.Contains(users[0].Content, "rewritten.png") {
		t.Fatalf("persisted row should carry the rewritten reference: %+v", users)
	}
}

func TestRunCommitsReplyAndUsage(t *testing.T) {
	f := newRelayFixture(&fakeStream{deltas: []string{"Hel", "lo ", "world"}})
	exchange, err := f.svc.Prepare(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	var forwarded []string
	text, err := exchange.Run(context.Background(), func(delta string) error {
		forwarded = append(forwarded, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("reply = %q, want %q", text, "Hello world")
	}
	if len(forwarded) != 3 {
		t.Fatalf("deltas forwarded = %d, want 3", len(forwarded))
	}

	assistants := f.messages.byRole(model.RoleAssistant)
	if len(assistants) != 1 || assistants[0].Content != "Hello world" {
		t.Fatalf("expected one assistant row with full text, got %+v", assistants)
	}
	if f.usage.increments != 1 {
		t.Fatalf("usage increments = %d, want 1", f.usage.increments)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(f.publisher.events))
	}
	event := f.publisher.events[0]
	if event.UserID != 1 || event.PresetID != 3 || event.ModelID != "m-1" || event.ReplySize != len("Hello world") {
		t.Errorf("audit event fields wrong: %+v", event)
	}
	if !f.opener.stream.closed {
		t.Error("stream not closed after Run")
	}
}

func TestRunBlankReplyCommitsNothing(t *testing.T) {
	f := newRelayFixture(&fakeStream{deltas: []string{"  ", "\n"}})
	exchange, err := f.svc.Prepare(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	text, err := exchange.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if text != "" {
		t.Fatalf("blank stream should yield empty reply, got %q", text)
	}
	if len(f.messages.byRole(model.RoleAssistant)) != 0 {
		t.Fatal("blank reply must not persist an assistant row")
	}
	if f.usage.increments != 0 {
		t.Fatal("blank reply must not increment usage")
	}
	if len(f.publisher.events) != 0 {
		t.Fatal("blank reply must not publish an audit event")
	}
}

func TestRunMidStreamErrorCommitsNothing(t *testing.T) {
	f := newRelayFixture(&fakeStream{deltas: []string{"partial "}, err: errors.New("connection reset")})
	exchange, err := f.svc.Prepare(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	text, err := exchange.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected mid-stream error")
	}
	if text != "partial " {
		t.Fatalf("accumulated = %q, want %q", text, "partial ")
	}
	if len(f.messages.byRole(model.RoleAssistant)) != 0 {
		t.Fatal("mid-stream failure must not persist an assistant row")
	}
	if f.usage.increments != 0 {
		t.Fatal("mid-stream failure must not increment usage")
	}
}

func TestRunClientAbortCommitsNothing(t *testing.T) {
	f := newRelayFixture(&fakeStream{deltas: []string{"some text"}})
	exchange, err := f.svc.Prepare(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := exchange.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.messages.byRole(model.RoleAssistant)) != 0 {
		t.Fatal("client abort must not persist an assistant row")
	}
	if f.usage.increments != 0 {
		t.Fatal("client abort must not increment usage")
	}
}

func TestRunDeltaCallbackErrorAborts(t *testing.T) {
	f := newRelayFixture(&fakeStream{deltas: []string{"a", "b"}})
	exchange, err := f.svc.Prepare(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	writeErr := errors.New("client write failed")
	_, err = exchange.Run(context.Background(), func(string) error { return writeErr })
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if len(f.messages.byRole(model.RoleAssistant)) != 0 {
		t.Fatal("failed forwarding must not persist an assistant row")
	}
}

func TestRelayTrimsHistoryToLimit(t *testing.T) {
	f := newRelayFixture(&fakeStream{})
	preset := &fakePresetSource{preset: &model.Preset{ID: 3, BaseURL: "https://u", APIKey: "k", ModelID: "m"}}
	f.svc = NewRelayService(f.sessions, f.messages, f.usage, preset, f.opener, nil, nil, nil, 4)

	input := validInput()
	input.Messages = nil
	for i := 0; i < 10; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		input.Messages = append(input.Messages, textMessage(role, "m"))
	}

	if _, err := f.svc.Prepare(context.Background(), input); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	// time entry + 4 kept history entries; no persona, no augmentation.
	if len(f.opener.gotMessages) != 5 {
		t.Fatalf("upstream messages = %d, want 5", len(f.opener.gotMessages))
	}
}
