package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	pb "github.com/dmitrijs2005/chatkeeper/internal/proto"
	"github.com/dmitrijs2005/chatkeeper/internal/server/backup"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// BackupService is the scheduler surface exposed to clients.
type BackupService interface {
	Trigger(ctx context.Context, manual bool) backup.Result
	Status() backup.Status
}

type idRequest struct {
	ID string `json:"id"`
}

type appendMessageRequest struct {
	ConversationID string          `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

type updateContextRequest struct {
	ID      string          `json:"id"`
	Context json.RawMessage `json:"context"`
}

type triggerBackupRequest struct {
	Manual *bool `json:"manual"`
}

type okResponse struct {
	OK             bool   `json:"ok"`
	ID             string `json:"id,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type listResponse struct {
	Conversations []*models.ConversationSummary `json:"conversations"`
}

var _ pb.ChatKeeperServer = (*GRPCServer)(nil)

func decodeID(in *structpb.Struct) (string, error) {
	var req idRequest
	if err := decodeStruct(in, &req); err != nil {
		return "", err
	}
	return req.ID, nil
}

func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := encodeStruct(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *GRPCServer) CreateOrUpdateConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.ConversationInput
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	id, err := s.conversations.CreateOrUpdateConversation(ctx, &req)
	return reply(okResponse{OK: true, ID: id}, err)
}

func (s *GRPCServer) GetConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeID(in)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	c, err := s.conversations.GetConversation(ctx, id)
	return reply(c, err)
}

func (s *GRPCServer) GetConversationWithMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeID(in)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	c, err := s.conversations.GetConversationWithMessages(ctx, id)
	return reply(c, err)
}

func (s *GRPCServer) ListConversations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.conversations.ListConversations(ctx)
	return reply(listResponse{Conversations: list}, err)
}

func (s *GRPCServer) DeleteConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeID(in)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	err = s.conversations.DeleteConversation(ctx, id)
	return reply(okResponse{OK: true}, err)
}

func (s *GRPCServer) AppendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req appendMessageRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	id, err := s.conversations.AppendMessage(ctx, req.ConversationID, req.Message)
	return reply(okResponse{OK: true, MessageID: id}, err)
}

func (s *GRPCServer) DeleteMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeID(in)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	convID, err := s.conversations.DeleteMessage(ctx, id)
	return reply(okResponse{OK: true, ConversationID: convID}, err)
}

func (s *GRPCServer) UpdateContext(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateContextRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	err := s.conversations.UpdateContext(ctx, req.ID, req.Context)
	return reply(okResponse{OK: true}, err)
}

func (s *GRPCServer) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.conversations.Stats(ctx)
	return reply(st, err)
}

// TriggerBackup treats a request without "manual" as a manual trigger.
func (s *GRPCServer) TriggerBackup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req triggerBackupRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	manual := req.Manual == nil || *req.Manual

	res := s.backups.Trigger(ctx, manual)
	s.logger.Info(ctx, "backup triggered", "manual", manual, "status", res.Status, "detail", res.Detail)
	return reply(res, nil)
}

func (s *GRPCServer) BackupStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(s.backups.Status(), nil)
}
