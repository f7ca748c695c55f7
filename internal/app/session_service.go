package app

import (
	"errors"
	"strings"

	"leftear-ai/internal/model"
	"leftear-ai/internal/repository"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionService struct {
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	presetRepo  *repository.PresetRepository
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	presetRepo *repository.PresetRepository,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		presetRepo:  presetRepo,
	}
}

type CreateSessionInput struct {
	UserID   uint
	PresetID uint
	Title    string
}

func (s *SessionService) Create(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 || input.PresetID == 0 {
		return nil, ErrInvalidInput
	}

	preset, err := s.presetRepo.GetByID(input.PresetID)
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, ErrPresetNotFound
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat · " + preset.Name
	}

	session := &model.Session{
		UserID:   input.UserID,
		PresetID: input.PresetID,
		Title:    title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) List(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *SessionService) Rename(userID, sessionID uint, title string) error {
	title = strings.TrimSpace(title)
	if userID == 0 || sessionID == 0 || title == "" {
		return ErrInvalidInput
	}
	if err := s.sessionRepo.Rename(sessionID, userID, title); err != nil {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session and cascades to its messages.
func (s *SessionService) Delete(userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	return s.sessionRepo.DeleteByIDAndUserID(sessionID, userID)
}

// History returns a session and its messages in append order.
func (s *SessionService) History(userID, sessionID uint, limit int) (*model.Session, []model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}
