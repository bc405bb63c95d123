package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/conversations"
)

// RepositoryManager prepares a relational database and vends the
// conversation repository bound to it.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Conversations(db *sql.DB) conversations.Repository
}
