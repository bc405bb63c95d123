package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	pb "github.com/dmitrijs2005/chatkeeper/internal/proto"
	"github.com/dmitrijs2005/chatkeeper/internal/server/backup"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const DefaultTimeout = 10 * time.Second

type GRPCClient struct {
	conn    *grpc.ClientConn
	client  pb.ChatKeeperClient
	timeout time.Duration
}

// NewClient dials endpointURL without transport security.
func NewClient(endpointURL string, timeout time.Duration) (*GRPCClient, error) {
	conn, err := grpc.NewClient(endpointURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c := NewFromConn(conn, timeout)
	c.conn = conn
	return c, nil
}

// NewFromConn wraps an existing connection. Close does not close cc.
func NewFromConn(cc grpc.ClientConnInterface, timeout time.Duration) *GRPCClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GRPCClient{client: pb.NewChatKeeperClient(cc), timeout: timeout}
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type okResponse struct {
	OK             bool   `json:"ok"`
	ID             string `json:"id"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// call encodes req, invokes method and decodes the reply into resp. A nil
// req sends an empty body; a nil resp discards the reply.
func (c *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in := &structpb.Struct{}
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("%w: %s request: %v", common.ErrSerialization, method, err)
		}
		if err := protojson.Unmarshal(raw, in); err != nil {
			return fmt.Errorf("%w: %s request: %v", common.ErrSerialization, method, err)
		}
	}

	out, err := c.client.Call(ctx, method, in)
	if err != nil {
		return mapError(err)
	}
	if resp == nil {
		return nil
	}

	raw, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("%w: %s response: %v", common.ErrSerialization, method, err)
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("%w: %s response: %v", common.ErrSerialization, method, err)
	}
	return nil
}

func (c *GRPCClient) UpsertConversation(ctx context.Context, in *models.ConversationInput) (string, error) {
	var resp okResponse
	if err := c.call(ctx, pb.MethodCreateOrUpdateConversation, in, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *GRPCClient) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) (string, error) {
	req := map[string]any{"conversationId": conversationID, "message": msg}
	var resp okResponse
	if err := c.call(ctx, pb.MethodAppendMessage, req, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (c *GRPCClient) UpdateContext(ctx context.Context, id string, payload json.RawMessage) error {
	req := map[string]any{"id": id, "context": payload}
	return c.call(ctx, pb.MethodUpdateContext, req, nil)
}

// DeleteMessage returns the id of the conversation the message belonged to.
func (c *GRPCClient) DeleteMessage(ctx context.Context, id string) (string, error) {
	var resp okResponse
	if err := c.call(ctx, pb.MethodDeleteMessage, map[string]string{"id": id}, &resp); err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

func (c *GRPCClient) DeleteConversation(ctx context.Context, id string) error {
	return c.call(ctx, pb.MethodDeleteConversation, map[string]string{"id": id}, nil)
}

func (c *GRPCClient) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.call(ctx, pb.MethodGetConversation, map[string]string{"id": id}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *GRPCClient) GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	var conv models.ConversationWithMessages
	if err := c.call(ctx, pb.MethodGetConversationWithMessages, map[string]string{"id": id}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *GRPCClient) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	var resp struct {
		Conversations []*models.ConversationSummary `json:"conversations"`
	}
	if err := c.call(ctx, pb.MethodListConversations, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *GRPCClient) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	if err := c.call(ctx, pb.MethodStats, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *GRPCClient) TriggerBackup(ctx context.Context, manual bool) (*backup.Result, error) {
	var res backup.Result
	if err := c.call(ctx, pb.MethodTriggerBackup, map[string]bool{"manual": manual}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) BackupStatus(ctx context.Context) (*backup.Status, error) {
	var st backup.Status
	if err := c.call(ctx, pb.MethodBackupStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
