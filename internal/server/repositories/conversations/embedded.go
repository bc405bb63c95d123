package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/filex"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/tidwall/gjson"
)

const (
	DefaultMainFile      = "conversations.json"
	DefaultBackupFile    = "conversations.backup.json"
	DefaultFlushInterval = 5 * time.Minute

	// Load sources reported by LoadedFrom.
	SourceMain   = "main"
	SourceBackup = "backup"
	SourceNone   = "none"
)

// Seams for simulating I/O failures in tests.
var (
	copyToBackup  = filex.CopyFile
	writeMainFile = filex.WriteFileAtomic
)

// EmbeddedOptions configures the file pair. Zero values fall back to the
// Default* constants; an empty Dir means the working directory.
type EmbeddedOptions struct {
	Dir           string
	MainFile      string
	BackupFile    string
	FlushInterval time.Duration
}

// fileState is the on-disk layout of both the main and the backup file.
type fileState struct {
	Conversations []*storedConversation `json:"conversations"`
	Messages      []*storedMessage      `json:"messages"`
	LastSaved     time.Time             `json:"lastSaved"`
	Operation     string                `json:"operation"`
}

// storedConversation and storedMessage shadow the opaque payload fields of
// the embedded models with their quoted form.
type storedConversation struct {
	*models.Conversation
	Context storedRaw `json:"context,omitempty"`
}

type storedMessage struct {
	*models.Message
	Attachments []storedRaw `json:"attachments,omitempty"`
}

// storedRaw is an opaque JSON value written as a JSON string, so indenting
// the file cannot reformat the caller's bytes.
type storedRaw []byte

func (s storedRaw) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *storedRaw) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*s = storedRaw(text)
		return nil
	}
	// Older files carry the value inline.
	*s = append(storedRaw(nil), b...)
	return nil
}

func rawFromStored(s storedRaw) json.RawMessage {
	if s == nil {
		return nil
	}
	return json.RawMessage(s)
}

// unwrap returns the stored entries as models, dropping null ones.
func (st *fileState) unwrap() ([]*models.Conversation, []*models.Message) {
	convs := make([]*models.Conversation, 0, len(st.Conversations))
	for _, sc := range st.Conversations {
		if sc == nil || sc.Conversation == nil {
			continue
		}
		c := sc.Conversation
		c.Context = rawFromStored(sc.Context)
		convs = append(convs, c)
	}

	msgs := make([]*models.Message, 0, len(st.Messages))
	for _, sm := range st.Messages {
		if sm == nil || sm.Message == nil {
			continue
		}
		m := sm.Message
		m.Attachments = nil
		for _, a := range sm.Attachments {
			m.Attachments = append(m.Attachments, rawFromStored(a))
		}
		msgs = append(msgs, m)
	}
	return convs, msgs
}

// EmbeddedRepository is the file-backed Repository. All state lives in
// memory; mutations are followed by a synchronous persist of the full
// dataset.
type EmbeddedRepository struct {
	mainPath      string
	backupPath    string
	flushInterval time.Duration
	logger        logging.Logger
	now           func() time.Time

	mu            sync.RWMutex
	conversations []*models.Conversation
	messages      []*models.Message
	loadedFrom    string

	// persistMu is acquired before mu is released so that files are written
	// in mutation order and never by two goroutines at once.
	persistMu sync.Mutex

	// flushedOnShutdown is set once Run's final flush succeeded.
	flushedOnShutdown atomic.Bool
}

// NewEmbeddedRepository loads state from the main file, falling back to the
// backup file and then to an empty store. It never fails: I/O problems are
// logged and the store keeps working from memory.
func NewEmbeddedRepository(opts EmbeddedOptions, logger logging.Logger) *EmbeddedRepository {
	if opts.MainFile == "" {
		opts.MainFile = DefaultMainFile
	}
	if opts.BackupFile == "" {
		opts.BackupFile = DefaultBackupFile
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}

	ctx := context.Background()
	logger = logger.With("module", "embedded_store")

	dir := opts.Dir
	if dir != "" {
		if abs, err := filex.EnsureDir(dir); err != nil {
			logger.Error(ctx, "data directory unavailable, persistence will keep failing", "dir", dir, "error", err)
		} else {
			dir = abs
		}
	}

	r := &EmbeddedRepository{
		mainPath:      filepath.Join(dir, opts.MainFile),
		backupPath:    filepath.Join(dir, opts.BackupFile),
		flushInterval: opts.FlushInterval,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	r.load(ctx)
	return r
}

// LoadedFrom reports which file populated the store at startup.
func (r *EmbeddedRepository) LoadedFrom() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedFrom
}

func (r *EmbeddedRepository) load(ctx context.Context) {
	sources := []struct {
		name string
		path string
	}{
		{SourceMain, r.mainPath},
		{SourceBackup, r.backupPath},
	}

	for _, src := range sources {
		st, err := readState(src.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.Debug(ctx, "store file absent", "source", src.name, "path", src.path)
			} else {
				r.logger.Warn(ctx, "store file unreadable", "source", src.name, "path", src.path, "error", err)
			}
			continue
		}

		r.conversations, r.messages = st.unwrap()
		r.loadedFrom = src.name
		r.logger.Info(ctx, "store loaded",
			"source", src.name,
			"conversations", len(r.conversations),
			"messages", len(r.messages),
			"last_saved", st.LastSaved,
			"operation", st.Operation)
		return
	}

	r.loadedFrom = SourceNone
	r.logger.Info(ctx, "store loaded", "source", SourceNone)
}

func readState(path string) (*fileState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Shape check only. Syntax errors surface from json.Unmarshal below.
	if !gjson.GetBytes(raw, "conversations").IsArray() {
		return nil, fmt.Errorf("%w: %s has no conversations array", common.ErrSerialization, path)
	}

	var st fileState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSerialization, path, err)
	}
	return &st, nil
}

// encodeLocked serializes the full state. Caller holds mu.
func (r *EmbeddedRepository) encodeLocked(op string) ([]byte, error) {
	st := fileState{
		Conversations: make([]*storedConversation, 0, len(r.conversations)),
		Messages:      make([]*storedMessage, 0, len(r.messages)),
		LastSaved:     r.now(),
		Operation:     op,
	}
	for _, c := range r.conversations {
		st.Conversations = append(st.Conversations, &storedConversation{Conversation: c, Context: storedRaw(c.Context)})
	}
	for _, m := range r.messages {
		sm := &storedMessage{Message: m}
		for _, a := range m.Attachments {
			sm.Attachments = append(sm.Attachments, storedRaw(a))
		}
		st.Messages = append(st.Messages, sm)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSerialization, err)
	}
	return data, nil
}

// writeFiles copies the current main file over the backup and then replaces
// the main file. Caller holds persistMu.
func (r *EmbeddedRepository) writeFiles(data []byte) error {
	if filex.Exists(r.mainPath) {
		if err := copyToBackup(r.mainPath, r.backupPath); err != nil {
			return fmt.Errorf("backup copy: %w", err)
		}
	}
	if err := writeMainFile(r.mainPath, data, 0o600); err != nil {
		return fmt.Errorf("write main: %w", err)
	}
	return nil
}

// mutate applies fn under the write lock and persists the result. A failed
// persist is logged and does not fail the mutation: the state stays in
// memory and the next persist retries.
func (r *EmbeddedRepository) mutate(ctx context.Context, op string, fn func() error) error {
	r.mu.Lock()
	if err := fn(); err != nil {
		r.mu.Unlock()
		return err
	}
	data, encErr := r.encodeLocked(op)
	r.persistMu.Lock()
	r.mu.Unlock()
	defer r.persistMu.Unlock()

	if encErr != nil {
		r.flushedOnShutdown.Store(false)
		r.logger.Error(ctx, "persist failed", "operation", op, "error", encErr)
		return nil
	}
	if err := r.writeFiles(data); err != nil {
		r.flushedOnShutdown.Store(false)
		r.logger.Error(ctx, "persist failed", "operation", op, "error", err)
	}
	return nil
}

// Flush persists the current state immediately.
func (r *EmbeddedRepository) Flush(ctx context.Context, op string) error {
	r.mu.RLock()
	data, err := r.encodeLocked(op)
	r.persistMu.Lock()
	r.mu.RUnlock()
	defer r.persistMu.Unlock()

	if err != nil {
		return err
	}
	return r.writeFiles(data)
}

// Run flushes on every FlushInterval tick until ctx is done, then flushes
// one last time. A successful final flush makes a later Close a no-op, so
// the backup file keeps the previous generation.
func (r *EmbeddedRepository) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(context.WithoutCancel(ctx), "shutdown"); err != nil {
				r.logger.Error(ctx, "final flush failed", "error", err)
				return
			}
			r.flushedOnShutdown.Store(true)
			return
		case <-ticker.C:
			if err := r.Flush(ctx, "interval"); err != nil {
				r.logger.Error(ctx, "interval flush failed", "error", err)
			}
		}
	}
}

// Close flushes the state unless Run already did so on shutdown.
func (r *EmbeddedRepository) Close() error {
	if r.flushedOnShutdown.Load() {
		return nil
	}
	return r.Flush(context.Background(), "close")
}

func (r *EmbeddedRepository) conversationLocked(id string) *models.Conversation {
	for _, c := range r.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *EmbeddedRepository) messageIndexLocked(id string) int {
	return slices.IndexFunc(r.messages, func(m *models.Message) bool { return m.ID == id })
}

// checkOwnerLocked rejects a message id already stored under another
// conversation.
func (r *EmbeddedRepository) checkOwnerLocked(msgID, conversationID string) error {
	if i := r.messageIndexLocked(msgID); i >= 0 && r.messages[i].ConversationID != conversationID {
		return fmt.Errorf("message %s belongs to another conversation: %w", msgID, common.ErrConflict)
	}
	return nil
}

func (r *EmbeddedRepository) putMessageLocked(msg *models.Message) {
	if i := r.messageIndexLocked(msg.ID); i >= 0 {
		r.messages[i] = msg
		return
	}
	r.messages = append(r.messages, msg)
}

func (r *EmbeddedRepository) UpsertConversation(ctx context.Context, in *models.ConversationInput) error {
	now := r.now()
	return r.mutate(ctx, "upsertConversation:"+in.ID, func() error {
		for _, m := range in.Messages {
			if err := r.checkOwnerLocked(m.ID, in.ID); err != nil {
				return err
			}
		}

		c := r.conversationLocked(in.ID)
		if c == nil {
			c = &models.Conversation{ID: in.ID, CreatedAt: now}
			r.conversations = append(r.conversations, c)
		}
		c.Title = in.Title
		c.Model = in.Model
		if in.Context != nil {
			c.Context = append(json.RawMessage(nil), in.Context...)
		}
		c.UpdatedAt = now

		for _, m := range in.Messages {
			cp := m.Clone()
			cp.ConversationID = in.ID
			r.putMessageLocked(cp)
		}
		return nil
	})
}

func (r *EmbeddedRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	now := r.now()
	return r.mutate(ctx, "appendMessage:"+msg.ID, func() error {
		c := r.conversationLocked(msg.ConversationID)
		if c == nil {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, common.ErrorNotFound)
		}
		if err := r.checkOwnerLocked(msg.ID, msg.ConversationID); err != nil {
			return err
		}
		r.putMessageLocked(msg.Clone())
		c.UpdatedAt = now
		return nil
	})
}

func (r *EmbeddedRepository) UpdateContext(ctx context.Context, id string, payload json.RawMessage) error {
	now := r.now()
	return r.mutate(ctx, "updateContext:"+id, func() error {
		c := r.conversationLocked(id)
		if c == nil {
			return fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
		}
		c.Context = append(json.RawMessage(nil), payload...)
		c.UpdatedAt = now
		return nil
	})
}

func (r *EmbeddedRepository) DeleteMessage(ctx context.Context, id string) (string, error) {
	now := r.now()
	var conversationID string
	err := r.mutate(ctx, "deleteMessage:"+id, func() error {
		i := r.messageIndexLocked(id)
		if i < 0 {
			return fmt.Errorf("message %s: %w", id, common.ErrorNotFound)
		}
		conversationID = r.messages[i].ConversationID
		r.messages = slices.Delete(r.messages, i, i+1)
		if c := r.conversationLocked(conversationID); c != nil {
			c.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return conversationID, nil
}

func (r *EmbeddedRepository) DeleteConversation(ctx context.Context, id string) error {
	return r.mutate(ctx, "deleteConversation:"+id, func() error {
		i := slices.IndexFunc(r.conversations, func(c *models.Conversation) bool { return c.ID == id })
		if i < 0 {
			return fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
		}
		r.conversations = slices.Delete(r.conversations, i, i+1)
		r.messages = slices.DeleteFunc(r.messages, func(m *models.Message) bool { return m.ConversationID == id })
		return nil
	})
}

func (r *EmbeddedRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.conversationLocked(id)
	if c == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
	}
	return c.Clone(), nil
}

func (r *EmbeddedRepository) GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.conversationLocked(id)
	if c == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, common.ErrorNotFound)
	}

	msgs := make([]*models.Message, 0)
	for _, m := range r.messages {
		if m.ConversationID == id {
			msgs = append(msgs, m.Clone())
		}
	}
	slices.SortStableFunc(msgs, func(a, b *models.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return &models.ConversationWithMessages{Conversation: *c.Clone(), Messages: msgs}, nil
}

func (r *EmbeddedRepository) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.conversations))
	for _, m := range r.messages {
		counts[m.ConversationID]++
	}

	out := make([]*models.ConversationSummary, 0, len(r.conversations))
	for _, c := range r.conversations {
		out = append(out, &models.ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			Model:        c.Model,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: counts[c.ID],
		})
	}
	slices.SortStableFunc(out, func(a, b *models.ConversationSummary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (r *EmbeddedRepository) Stats(ctx context.Context) (*models.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &models.Stats{
		ConversationCount: len(r.conversations),
		MessageCount:      len(r.messages),
		Backend:           models.BackendEmbedded,
	}, nil
}

func (r *EmbeddedRepository) Export(ctx context.Context) (*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds := &models.Dataset{
		Conversations: make([]*models.Conversation, 0, len(r.conversations)),
		Messages:      make([]*models.Message, 0, len(r.messages)),
	}
	for _, c := range r.conversations {
		ds.Conversations = append(ds.Conversations, c.Clone())
	}
	for _, m := range r.messages {
		ds.Messages = append(ds.Messages, m.Clone())
	}
	return ds, nil
}
