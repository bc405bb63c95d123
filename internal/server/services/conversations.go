// Package services contains server-side business logic. ConversationService
// validates and normalizes client payloads before they reach the selected
// storage backend.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/conversations"
	"github.com/google/uuid"
)

var newMessageID = uuid.NewString

type ConversationService struct {
	repo conversations.Repository
	now  func() time.Time
}

func NewConversationService(repo conversations.Repository) *ConversationService {
	return &ConversationService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrValidation, fmt.Sprintf(format, args...))
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationErr("%s id is required", kind)
	}
	return nil
}

func validContext(payload json.RawMessage) error {
	if payload != nil && !json.Valid(payload) {
		return validationErr("context is not valid JSON")
	}
	return nil
}

// normalizeMessage fills defaults in place: a generated id, status sent and
// the current time.
func (s *ConversationService) normalizeMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = newMessageID()
	}
	if m.Status == "" {
		m.Status = models.MessageSent
	}
	if !m.Status.Valid() {
		return validationErr("message %s: unknown status %q", m.ID, m.Status)
	}
	if m.RetryCount < 0 {
		return validationErr("message %s: negative retry count", m.ID)
	}
	for i, a := range m.Attachments {
		if !json.Valid(a) {
			return validationErr("message %s: attachment %d is not valid JSON", m.ID, i)
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	return nil
}

// CreateOrUpdateConversation upserts a conversation and any messages sent
// with it, returning the conversation id.
func (s *ConversationService) CreateOrUpdateConversation(ctx context.Context, in *models.ConversationInput) (string, error) {
	if err := requireID("conversation", in.ID); err != nil {
		return "", err
	}
	if err := validContext(in.Context); err != nil {
		return "", err
	}
	for _, m := range in.Messages {
		if m == nil {
			return "", validationErr("nil message")
		}
		if m.ConversationID != "" && m.ConversationID != in.ID {
			return "", validationErr("message %s belongs to conversation %s", m.ID, m.ConversationID)
		}
		if err := s.normalizeMessage(m); err != nil {
			return "", err
		}
		m.ConversationID = in.ID
	}

	if err := s.repo.UpsertConversation(ctx, in); err != nil {
		return "", err
	}
	return in.ID, nil
}

// AppendMessage adds msg to an existing conversation and returns the
// message id, generated when the client did not supply one.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) (string, error) {
	if err := requireID("conversation", conversationID); err != nil {
		return "", err
	}
	if msg == nil {
		return "", validationErr("message is required")
	}
	msg.ConversationID = conversationID
	if err := s.normalizeMessage(msg); err != nil {
		return "", err
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *ConversationService) UpdateContext(ctx context.Context, id string, payload json.RawMessage) error {
	if err := requireID("conversation", id); err != nil {
		return err
	}
	if len(payload) == 0 {
		return validationErr("context is required")
	}
	if err := validContext(payload); err != nil {
		return err
	}
	return s.repo.UpdateContext(ctx, id, payload)
}

func (s *ConversationService) DeleteMessage(ctx context.Context, id string) (string, error) {
	if err := requireID("message", id); err != nil {
		return "", err
	}
	return s.repo.DeleteMessage(ctx, id)
}

func (s *ConversationService) DeleteConversation(ctx context.Context, id string) error {
	if err := requireID("conversation", id); err != nil {
		return err
	}
	return s.repo.DeleteConversation(ctx, id)
}

func (s *ConversationService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if err := requireID("conversation", id); err != nil {
		return nil, err
	}
	return s.repo.GetConversation(ctx, id)
}

func (s *ConversationService) GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	if err := requireID("conversation", id); err != nil {
		return nil, err
	}
	return s.repo.GetConversationWithMessages(ctx, id)
}

func (s *ConversationService) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	return s.repo.ListConversations(ctx)
}

func (s *ConversationService) Stats(ctx context.Context) (*models.Stats, error) {
	return s.repo.Stats(ctx)
}
