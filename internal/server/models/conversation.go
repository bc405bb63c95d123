// Package models defines the persisted conversation records and the derived
// shapes returned by the storage layer.
package models

import (
	"encoding/json"
	"time"
)

// Backend tags reported by Stats.
const (
	BackendEmbedded   = "embedded"
	BackendRelational = "relational"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessagePending, MessageSent, MessageFailed:
		return true
	}
	return false
}

// Conversation is a chat thread. Context is an opaque JSON payload that is
// stored and returned byte-for-byte; last write wins.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// Message belongs to exactly one Conversation via ConversationID.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Sender         string            `json:"sender"`
	Content        string            `json:"content"`
	Attachments    []json.RawMessage `json:"attachments,omitempty"`
	Status         MessageStatus     `json:"status"`
	RetryCount     int               `json:"retryCount"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ConversationInput is the payload of an upsert. A nil Context leaves the
// stored context untouched on update.
type ConversationInput struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Model    string          `json:"model"`
	Context  json.RawMessage `json:"context,omitempty"`
	Messages []*Message      `json:"messages,omitempty"`
}

// ConversationSummary is a list row with a live message count.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// ConversationWithMessages is a conversation plus its messages sorted
// ascending by CreatedAt.
type ConversationWithMessages struct {
	Conversation
	Messages []*Message `json:"messages"`
}

type Stats struct {
	ConversationCount int    `json:"conversationCount"`
	MessageCount      int    `json:"messageCount"`
	Backend           string `json:"backend"`
}

// Dataset is the full content of a store, as read by the backup exporter.
type Dataset struct {
	Conversations []*Conversation `json:"conversations"`
	Messages      []*Message      `json:"messages"`
}

// Clone returns a deep copy so callers cannot alias store state.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Context = cloneRaw(c.Context)
	return &cp
}

// Clone returns a deep copy so callers cannot alias store state.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Attachments != nil {
		cp.Attachments = make([]json.RawMessage, len(m.Attachments))
		for i, a := range m.Attachments {
			cp.Attachments[i] = cloneRaw(a)
		}
	}
	return &cp
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
