package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/dbx"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

// PostgresRepository implements Repository over PostgreSQL. Multi-statement
// writes run in a transaction; single-statement writes rely on the statement
// being atomic.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository constructs a repository bound to an open, migrated
// database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrBackendUnavailable, err)
}

func encodeAttachments(a []json.RawMessage) ([]byte, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("%w: attachments: %v", common.ErrSerialization, err)
	}
	return b, nil
}

func decodeAttachments(b []byte) ([]json.RawMessage, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var a []json.RawMessage
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: attachments: %v", common.ErrSerialization, err)
	}
	return a, nil
}

func rawOrNil(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return json.RawMessage(b)
}

// A message id already owned by another conversation is left untouched and
// reported as zero rows affected.
const upsertMessageQuery = `
	INSERT INTO messages (id, conversation_id, sender, content, attachments, status, retry_count, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		sender = EXCLUDED.sender,
		content = EXCLUDED.content,
		attachments = EXCLUDED.attachments,
		status = EXCLUDED.status,
		retry_count = EXCLUDED.retry_count,
		error_message = EXCLUDED.error_message,
		created_at = EXCLUDED.created_at
	WHERE messages.conversation_id = EXCLUDED.conversation_id
`

func (r *PostgresRepository) UpsertConversation(ctx context.Context, in *models.ConversationInput) error {
	now := r.now()

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO conversations (id, title, model, context, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				model = EXCLUDED.model,
				context = COALESCE(EXCLUDED.context, conversations.context),
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, in.ID, in.Title, in.Model, []byte(in.Context), now); err != nil {
			return dbErr("upsert conversation", err)
		}

		for _, m := range in.Messages {
			att, err := encodeAttachments(m.Attachments)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, upsertMessageQuery,
				m.ID, in.ID, m.Sender, m.Content, att, string(m.Status), m.RetryCount, m.ErrorMessage, m.CreatedAt.UTC(),
			)
			if err != nil {
				return dbErr("upsert message", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return dbErr("upsert message rows affected", err)
			}
			if n == 0 {
				return fmt.Errorf("message %s belongs to another conversation: %w", m.ID, common.ErrConflict)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	att, err := encodeAttachments(msg.Attachments)
	if err != nil {
		return err
	}

	// owners is zero when the conversation is missing. stored is zero when
	// the message id is already owned by another conversation, in which case
	// nothing is written and updated_at stays as it was.
	query := `
		WITH owner AS (
			SELECT id FROM conversations WHERE id = $2 FOR UPDATE
		), ins AS (
			INSERT INTO messages (id, conversation_id, sender, content, attachments, status, retry_count, error_message, created_at)
			SELECT $1::text, owner.id, $3::text, $4::text, $5::bytea, $6::text, $7::integer, $8::text, $9::timestamptz
			FROM owner
			ON CONFLICT (id) DO UPDATE SET
				sender = EXCLUDED.sender,
				content = EXCLUDED.content,
				attachments = EXCLUDED.attachments,
				status = EXCLUDED.status,
				retry_count = EXCLUDED.retry_count,
				error_message = EXCLUDED.error_message,
				created_at = EXCLUDED.created_at
			WHERE messages.conversation_id = EXCLUDED.conversation_id
			RETURNING conversation_id
		), touched AS (
			UPDATE conversations SET updated_at = $10
			WHERE id IN (SELECT conversation_id FROM ins)
			RETURNING id
		)
		SELECT (SELECT COUNT(*) FROM owner), (SELECT COUNT(*) FROM touched)
	`
	var owners, stored int64
	err = r.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, att, string(msg.Status),
		msg.RetryCount, msg.ErrorMessage, msg.CreatedAt.UTC(), r.now(),
	).Scan(&owners, &stored)
	if err != nil {
		return dbErr("append message", err)
	}
	switch {
	case owners == 0:
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, common.ErrorNotFound)
	case stored == 0:
		return fmt.Errorf("message %s belongs to another conversation: %w", msg.ID, common.ErrConflict)
	}
	return nil
}

func (r *PostgresRepository) UpdateContext(ctx context.Context, id string, payload json.RawMessage) error {
	query := `UPDATE conversations SET context = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, []byte(payload), r.now())
	if err != nil {
		return dbErr("update context", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("update context rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func (r *PostgresRepository) DeleteMessage(ctx context.Context, id string) (string, error) {
	query := `
		WITH removed AS (
			DELETE FROM messages WHERE id = $1 RETURNING conversation_id
		)
		UPDATE conversations SET updated_at = $2
		FROM removed
		WHERE conversations.id = removed.conversation_id
		RETURNING conversations.id
	`
	var conversationID string
	err := r.db.QueryRowContext(ctx, query, id, r.now()).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("message %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return "", dbErr("delete message", err)
	}
	return conversationID, nil
}

// DeleteConversation relies on ON DELETE CASCADE for the messages.
func (r *PostgresRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return dbErr("delete conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("delete conversation rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

const selectConversationQuery = `
	SELECT id, title, model, context, created_at, updated_at
	FROM conversations WHERE id = $1
`

func (r *PostgresRepository) getConversation(ctx context.Context, db dbx.DBTX, id string) (*models.Conversation, error) {
	var (
		c   models.Conversation
		raw []byte
	)
	err := db.QueryRowContext(ctx, selectConversationQuery, id).
		Scan(&c.ID, &c.Title, &c.Model, &raw, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, dbErr("select conversation", err)
	}
	c.Context = rawOrNil(raw)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *PostgresRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return r.getConversation(ctx, r.db, id)
}

const messageColumns = `id, conversation_id, sender, content, attachments, status, retry_count, error_message, created_at`

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	result := make([]*models.Message, 0)
	for rows.Next() {
		var (
			m      models.Message
			att    []byte
			status string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &att, &status,
			&m.RetryCount, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, dbErr("scan message", err)
		}
		a, err := decodeAttachments(att)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
		m.Attachments = a
		m.Status = models.MessageStatus(status)
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate messages", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	var out *models.ConversationWithMessages

	err := dbx.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		func(ctx context.Context, tx dbx.DBTX) error {
			c, err := r.getConversation(ctx, tx, id)
			if err != nil {
				return err
			}

			query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
			rows, err := tx.QueryContext(ctx, query, id)
			if err != nil {
				return dbErr("select messages", err)
			}
			msgs, err := scanMessages(rows)
			if err != nil {
				return err
			}

			out = &models.ConversationWithMessages{Conversation: *c, Messages: msgs}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	query := `
		SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dbErr("list conversations", err)
	}
	defer rows.Close()

	result := make([]*models.ConversationSummary, 0)
	for rows.Next() {
		var s models.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Model, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, dbErr("scan conversation", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate conversations", err)
	}
	return result, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*models.Stats, error) {
	query := `SELECT (SELECT COUNT(*) FROM conversations), (SELECT COUNT(*) FROM messages)`
	s := models.Stats{Backend: models.BackendRelational}
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.ConversationCount, &s.MessageCount); err != nil {
		return nil, dbErr("stats", err)
	}
	return &s, nil
}

// Export reads both tables from a single repeatable-read snapshot.
func (r *PostgresRepository) Export(ctx context.Context) (*models.Dataset, error) {
	ds := &models.Dataset{}

	err := dbx.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		func(ctx context.Context, tx dbx.DBTX) error {
			rows, err := tx.QueryContext(ctx,
				`SELECT id, title, model, context, created_at, updated_at FROM conversations ORDER BY created_at ASC, id ASC`)
			if err != nil {
				return dbErr("export conversations", err)
			}
			defer rows.Close()

			ds.Conversations = make([]*models.Conversation, 0)
			for rows.Next() {
				var (
					c   models.Conversation
					raw []byte
				)
				if err := rows.Scan(&c.ID, &c.Title, &c.Model, &raw, &c.CreatedAt, &c.UpdatedAt); err != nil {
					return dbErr("scan conversation", err)
				}
				c.Context = rawOrNil(raw)
				c.CreatedAt = c.CreatedAt.UTC()
				c.UpdatedAt = c.UpdatedAt.UTC()
				ds.Conversations = append(ds.Conversations, &c)
			}
			if err := rows.Err(); err != nil {
				return dbErr("iterate conversations", err)
			}

			mrows, err := tx.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at ASC, id ASC`)
			if err != nil {
				return dbErr("export messages", err)
			}
			ds.Messages, err = scanMessages(mrows)
			return err
		})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
