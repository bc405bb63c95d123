package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/conversations"
)

const DefaultConnectTimeout = 10 * time.Second

// Options drives backend selection. An empty DatabaseDSN selects the
// embedded store directly.
type Options struct {
	DatabaseDSN    string
	ConnectTimeout time.Duration
	Embedded       conversations.EmbeddedOptions
}

// Decision records which backend was chosen and, on fallback, why.
type Decision struct {
	ChosenBackend  string `json:"chosenBackend"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Seams for tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newManager = NewPostgresRepositoryManager
)

// SelectBackend returns exactly one usable repository. A relational backend
// is tried when a DSN is configured; any failure while connecting or
// migrating is logged and the embedded store is used instead. The returned
// Repository is never nil.
func SelectBackend(ctx context.Context, opts Options, logger logging.Logger) (conversations.Repository, Decision) {
	log := logger.With("module", "storage_selector")

	if opts.DatabaseDSN == "" {
		d := Decision{ChosenBackend: models.BackendEmbedded}
		log.Info(ctx, "storage backend selected", "chosen_backend", d.ChosenBackend)
		return conversations.NewEmbeddedRepository(opts.Embedded, logger), d
	}

	repo, err := openRelational(ctx, opts)
	if err == nil {
		d := Decision{ChosenBackend: models.BackendRelational}
		log.Info(ctx, "storage backend selected", "chosen_backend", d.ChosenBackend)
		return repo, d
	}

	d := Decision{ChosenBackend: models.BackendEmbedded, FallbackReason: err.Error()}
	log.Warn(ctx, "storage backend selected",
		"chosen_backend", d.ChosenBackend,
		"fallback_reason", d.FallbackReason)
	return conversations.NewEmbeddedRepository(opts.Embedded, logger), d
}

func openRelational(ctx context.Context, opts Options) (conversations.Repository, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	db, err := openDB(opts.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	m := newManager()
	if err := m.RunMigrations(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return m.Conversations(db), nil
}
