package models

import "time"

// Snapshot describes one exported dataset stored in the remote archive.
// Counts are known only for snapshots produced by this process; snapshots
// discovered through an archive listing carry zero counts.
type Snapshot struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	SizeBytes         int64     `json:"sizeBytes"`
	ConversationCount int       `json:"conversationCount"`
	MessageCount      int       `json:"messageCount"`
}
