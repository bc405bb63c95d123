package conversations

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

// Repository is the storage contract shared by the embedded and relational
// backends. Lookups of unknown ids fail with common.ErrorNotFound.
type Repository interface {
	// UpsertConversation merges or inserts by id, bumps UpdatedAt and
	// upserts any provided messages under the conversation.
	UpsertConversation(ctx context.Context, in *models.ConversationInput) error

	// AppendMessage stores msg and bumps the owning conversation's UpdatedAt.
	// The owning conversation must exist.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// UpdateContext replaces the opaque context payload.
	UpdateContext(ctx context.Context, id string, payload json.RawMessage) error

	// DeleteMessage removes a message and returns the id of its conversation.
	DeleteMessage(ctx context.Context, id string) (string, error)

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error

	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error)
	ListConversations(ctx context.Context) ([]*models.ConversationSummary, error)
	Stats(ctx context.Context) (*models.Stats, error)

	// Export returns a consistent copy of every conversation and message.
	Export(ctx context.Context) (*models.Dataset, error)

	Close() error
}
