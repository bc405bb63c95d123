// Package repomanager chooses the conversation storage backend at startup
// and wires the PostgreSQL repository together with its goose migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chatkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/conversations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends the PostgreSQL-backed conversation
// repository and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Conversations returns a conversations.Repository bound to db.
func (m *PostgresRepositoryManager) Conversations(db *sql.DB) conversations.Repository {
	return conversations.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
