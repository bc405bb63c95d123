package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newEmbedded(t *testing.T, dir string) *EmbeddedRepository {
	t.Helper()
	r := NewEmbeddedRepository(EmbeddedOptions{Dir: dir}, logging.Nop{})
	clock := &stepClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	r.now = clock.Now
	return r
}

func msg(id, conv string, at time.Time) *models.Message {
	return &models.Message{
		ID:             id,
		ConversationID: conv,
		Sender:         "user",
		Content:        "content of " + id,
		Status:         models.MessageSent,
		CreatedAt:      at,
	}
}

func readFileState(t *testing.T, path string) *fileState {
	t.Helper()
	st, err := readState(path)
	require.NoError(t, err)
	return st
}

func TestEmbedded_StartsEmptyWithoutFiles(t *testing.T) {
	r := newEmbedded(t, t.TempDir())

	assert.Equal(t, SourceNone, r.LoadedFrom())
	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.Stats{Backend: models.BackendEmbedded}, stats)
}

func TestEmbedded_ReloadsFromMainFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	r := newEmbedded(t, dir)
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{
		ID: "c1", Title: "first", Model: "gpt",
		Context:  json.RawMessage(`{"system":"be nice"}`),
		Messages: []*models.Message{msg("m1", "", base)},
	}))
	require.NoError(t, r.AppendMessage(ctx, msg("m2", "c1", base.Add(time.Minute))))

	reloaded := newEmbedded(t, dir)
	assert.Equal(t, SourceMain, reloaded.LoadedFrom())

	got, err := reloaded.GetConversationWithMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, `{"system":"be nice"}`, string(got.Context))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "c1", got.Messages[0].ConversationID, "cascade-inserted messages get the owner id")
}

func TestEmbedded_FallsBackToBackupWhenMainCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r := newEmbedded(t, dir)
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Title: "one"}))
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2", Title: "two"}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMainFile), []byte(`{"conversations": [`), 0o600))

	reloaded := newEmbedded(t, dir)
	assert.Equal(t, SourceBackup, reloaded.LoadedFrom())

	_, err := reloaded.GetConversation(ctx, "c1")
	require.NoError(t, err)
	_, err = reloaded.GetConversation(ctx, "c2")
	require.ErrorIs(t, err, common.ErrorNotFound, "backup holds the state before the last write")
}

func TestEmbedded_StartsEmptyWhenBothFilesCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMainFile), []byte(`garbage`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultBackupFile), []byte(`{"messages": []}`), 0o600))

	r := newEmbedded(t, dir)
	assert.Equal(t, SourceNone, r.LoadedFrom())

	list, err := r.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmbedded_PersistCopiesMainToBackupBeforeWriting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newEmbedded(t, dir)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1"}))
	assert.NoFileExists(t, filepath.Join(dir, DefaultBackupFile), "no backup before the second write")

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2"}))

	main := readFileState(t, filepath.Join(dir, DefaultMainFile))
	backup := readFileState(t, filepath.Join(dir, DefaultBackupFile))
	assert.Len(t, main.Conversations, 2)
	assert.Len(t, backup.Conversations, 1)
	assert.Equal(t, "upsertConversation:c2", main.Operation)
	assert.Equal(t, "upsertConversation:c1", backup.Operation)
	assert.False(t, main.LastSaved.IsZero())
}

func TestEmbedded_InterruptedWriteLeavesValidBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newEmbedded(t, dir)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Title: "kept"}))
	require.NoError(t, r.AppendMessage(ctx, msg("m1", "c1", time.Now())))
	before, err := os.ReadFile(filepath.Join(dir, DefaultMainFile))
	require.NoError(t, err)

	orig := writeMainFile
	t.Cleanup(func() { writeMainFile = orig })
	writeMainFile = func(path string, data []byte, perm os.FileMode) error {
		// crash between the backup copy and the main overwrite
		return errors.New("power loss")
	}

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2"}),
		"persist failures do not fail the mutation")

	backupRaw, err := os.ReadFile(filepath.Join(dir, DefaultBackupFile))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(backupRaw), "backup is the exact pre-write state")

	backup := readFileState(t, filepath.Join(dir, DefaultBackupFile))
	require.Len(t, backup.Conversations, 1)
	require.Len(t, backup.Messages, 1)

	_, err = r.GetConversation(ctx, "c2")
	require.NoError(t, err, "state stays in memory after a failed persist")

	writeMainFile = orig
	require.NoError(t, r.Flush(ctx, "retry"))
	assert.Len(t, readFileState(t, filepath.Join(dir, DefaultMainFile)).Conversations, 2)
}

func TestEmbedded_BackupCopyFailureKeepsMainUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newEmbedded(t, dir)
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1"}))

	orig := copyToBackup
	t.Cleanup(func() { copyToBackup = orig })
	copyToBackup = func(src, dst string) error { return errors.New("disk full") }

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2"}))
	assert.Len(t, readFileState(t, filepath.Join(dir, DefaultMainFile)).Conversations, 1)
}

func TestEmbedded_UpsertMergesExisting(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{
		ID: "c1", Title: "old", Model: "m1", Context: json.RawMessage(`{"a":1}`),
	}))
	first, err := r.GetConversation(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Title: "new", Model: "m2"}))
	second, err := r.GetConversation(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "new", second.Title)
	assert.Equal(t, "m2", second.Model)
	assert.Equal(t, `{"a":1}`, string(second.Context), "nil context keeps the stored one")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ConversationCount)
}

func TestEmbedded_UpsertReplacesMessagesById(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := msg("m1", "c1", at)
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Messages: []*models.Message{m}}))

	m2 := msg("m1", "c1", at)
	m2.Status = models.MessageFailed
	m2.RetryCount = 2
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Messages: []*models.Message{m2}}))

	got, err := r.GetConversationWithMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, models.MessageFailed, got.Messages[0].Status)
	assert.Equal(t, 2, got.Messages[0].RetryCount)
}

func TestEmbedded_MessageIDOwnedByAnotherConversation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newEmbedded(t, dir)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Messages: []*models.Message{msg("m1", "", at)}}))
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2"}))
	before, err := os.ReadFile(filepath.Join(dir, DefaultMainFile))
	require.NoError(t, err)

	moved := msg("m1", "c2", at)
	moved.Content = "hijacked"

	err = r.AppendMessage(ctx, moved)
	require.ErrorIs(t, err, common.ErrConflict)

	err = r.UpsertConversation(ctx, &models.ConversationInput{ID: "c3", Title: "new", Messages: []*models.Message{moved}})
	require.ErrorIs(t, err, common.ErrConflict)

	_, err = r.GetConversation(ctx, "c3")
	require.ErrorIs(t, err, common.ErrorNotFound, "a rejected upsert leaves no partial state")

	got, err := r.GetConversationWithMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "content of m1", got.Messages[0].Content)

	other, err := r.GetConversationWithMessages(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, other.Messages)

	after, err := os.ReadFile(filepath.Join(dir, DefaultMainFile))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "rejected calls do not persist")
}

func TestEmbedded_AppendMessage(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())

	err := r.AppendMessage(ctx, msg("m1", "ghost", time.Now()))
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1"}))
	before, _ := r.GetConversation(ctx, "c1")

	require.NoError(t, r.AppendMessage(ctx, msg("m1", "c1", time.Now())))
	after, _ := r.GetConversation(ctx, "c1")
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestEmbedded_UpdateContext(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())

	require.ErrorIs(t, r.UpdateContext(ctx, "nope", json.RawMessage(`{}`)), common.ErrorNotFound)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Context: json.RawMessage(`{"v":1}`)}))
	require.NoError(t, r.UpdateContext(ctx, "c1", json.RawMessage(`[1, 2,  3]`)))

	got, err := r.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, `[1, 2,  3]`, string(got.Context))
}

func TestEmbedded_DeleteMessageTwice(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{
		ID: "c1", Messages: []*models.Message{msg("m1", "c1", time.Now()), msg("m2", "c1", time.Now())},
	}))
	before, _ := r.GetConversation(ctx, "c1")

	convID, err := r.DeleteMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c1", convID)

	_, err = r.DeleteMessage(ctx, "m1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	got, err := r.GetConversationWithMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "m2", got.Messages[0].ID)
	assert.True(t, got.UpdatedAt.After(before.UpdatedAt))
}

func TestEmbedded_DeleteConversationCascades(t *testing.T) {
	ctx := context.Background()

	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d messages", n), func(t *testing.T) {
			r := newEmbedded(t, t.TempDir())
			id := fmt.Sprintf("c-%d", n)
			in := &models.ConversationInput{ID: id}
			for i := 0; i < n; i++ {
				in.Messages = append(in.Messages, msg(fmt.Sprintf("%s-m%d", id, i), id, time.Now()))
			}
			require.NoError(t, r.UpsertConversation(ctx, in))
			require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{
				ID: "other", Messages: []*models.Message{msg("other-m", "other", time.Now())},
			}))

			require.NoError(t, r.DeleteConversation(ctx, id))

			_, err := r.GetConversation(ctx, id)
			require.ErrorIs(t, err, common.ErrorNotFound)

			ds, err := r.Export(ctx)
			require.NoError(t, err)
			for _, m := range ds.Messages {
				assert.NotEqual(t, id, m.ConversationID)
			}
			assert.Len(t, ds.Messages, 1, "unrelated messages survive")

			require.ErrorIs(t, r.DeleteConversation(ctx, id), common.ErrorNotFound)
		})
	}
}

func TestEmbedded_ListAndMessageOrdering(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "a"}))
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "b"}))
	require.NoError(t, r.AppendMessage(ctx, msg("late", "a", base.Add(time.Hour))))
	require.NoError(t, r.AppendMessage(ctx, msg("early", "a", base)))

	list, err := r.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID, "most recently updated first")
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, 0, list[1].MessageCount)

	got, err := r.GetConversationWithMessages(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "early", got.Messages[0].ID)
	assert.Equal(t, "late", got.Messages[1].ID)
}

func TestEmbedded_RoundTripIsByteExact(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())
	at := time.Date(2026, 3, 4, 5, 6, 7, 890000000, time.UTC)

	in := &models.ConversationInput{
		ID:      "c1",
		Title:   "Trip ✈",
		Model:   "claude",
		Context: json.RawMessage(`{ "z": [1,2,3], "a": {"nested": true} }`),
		Messages: []*models.Message{{
			ID:           "m1",
			Sender:       "assistant",
			Content:      "hello\nworld",
			Attachments:  []json.RawMessage{json.RawMessage(`{"name":"a.png","size":12}`), json.RawMessage(`"inline"`)},
			Status:       models.MessageFailed,
			RetryCount:   3,
			ErrorMessage: "timeout",
			CreatedAt:    at,
		}},
	}
	require.NoError(t, r.UpsertConversation(ctx, in))

	got, err := r.GetConversationWithMessages(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Model, got.Model)
	assert.Equal(t, string(in.Context), string(got.Context))

	want := *in.Messages[0]
	want.ConversationID = "c1"
	assert.Empty(t, cmp.Diff(&want, got.Messages[0]))
}

func reloadFixture() *models.ConversationInput {
	return &models.ConversationInput{
		ID:      "c1",
		Title:   "reload",
		Context: json.RawMessage(`{ "z": [1, 2,3],` + "\n\t" + `"a": {"nested": true, "html": "<b>&</b>"} }`),
		Messages: []*models.Message{{
			ID:          "m1",
			Status:      models.MessageSent,
			CreatedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
			Attachments: []json.RawMessage{json.RawMessage(`{ "name" : "a.png" }`), json.RawMessage(`[1,  2]`), json.RawMessage(`"inline"`)},
		}},
	}
}

func assertPayloadsExact(t *testing.T, in *models.ConversationInput, got *models.ConversationWithMessages) {
	t.Helper()
	assert.Equal(t, string(in.Context), string(got.Context))
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Attachments, len(in.Messages[0].Attachments))
	for i, a := range in.Messages[0].Attachments {
		assert.Equal(t, string(a), string(got.Messages[0].Attachments[i]), "attachment %d", i)
	}
}

func TestEmbedded_ReloadKeepsPayloadBytes(t *testing.T) {
	ctx := context.Background()

	t.Run("main file", func(t *testing.T) {
		dir := t.TempDir()
		in := reloadFixture()
		require.NoError(t, newEmbedded(t, dir).UpsertConversation(ctx, in))

		reloaded := newEmbedded(t, dir)
		require.Equal(t, SourceMain, reloaded.LoadedFrom())
		got, err := reloaded.GetConversationWithMessages(ctx, "c1")
		require.NoError(t, err)
		assertPayloadsExact(t, in, got)
	})

	t.Run("backup file", func(t *testing.T) {
		dir := t.TempDir()
		in := reloadFixture()
		r := newEmbedded(t, dir)
		require.NoError(t, r.UpsertConversation(ctx, in))
		require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c2"}))
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMainFile), []byte(`not json`), 0o600))

		reloaded := newEmbedded(t, dir)
		require.Equal(t, SourceBackup, reloaded.LoadedFrom())
		got, err := reloaded.GetConversationWithMessages(ctx, "c1")
		require.NoError(t, err)
		assertPayloadsExact(t, in, got)
	})
}

func TestEmbedded_LoadsInlinePayloads(t *testing.T) {
	dir := t.TempDir()
	raw := `{"conversations": [{"id": "c1", "context": {"k": 1}}, null],
		"messages": [{"id": "m1", "conversationId": "c1", "attachments": [{"n": 1}], "status": "sent"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMainFile), []byte(raw), 0o600))

	r := newEmbedded(t, dir)
	require.Equal(t, SourceMain, r.LoadedFrom())

	got, err := r.GetConversationWithMessages(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, `{"k": 1}`, string(got.Context))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`{"n": 1}`)}, got.Messages[0].Attachments)
}

func TestEmbedded_SyntaxErrorFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMainFile), []byte(`{"conversations": [], "messages": [}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultBackupFile), []byte(`{"conversations": [{"id": "c1"}], "messages": []}`), 0o600))

	_, err := readState(filepath.Join(dir, DefaultMainFile))
	require.ErrorIs(t, err, common.ErrSerialization)

	r := newEmbedded(t, dir)
	assert.Equal(t, SourceBackup, r.LoadedFrom())
}

func TestEmbedded_ReturnedValuesDoNotAliasState(t *testing.T) {
	ctx := context.Background()
	r := newEmbedded(t, t.TempDir())
	require.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: "c1", Title: "t", Context: json.RawMessage(`{"k":1}`)}))

	got, _ := r.GetConversation(ctx, "c1")
	got.Title = "mutated"
	got.Context[1] = 'X'

	again, _ := r.GetConversation(ctx, "c1")
	assert.Equal(t, "t", again.Title)
	assert.Equal(t, `{"k":1}`, string(again.Context))
}

func TestEmbedded_ConcurrentMutationsPersistLatestState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newEmbedded(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%02d", i)
			assert.NoError(t, r.UpsertConversation(ctx, &models.ConversationInput{ID: id}))
			assert.NoError(t, r.AppendMessage(ctx, msg(id+"-m", id, time.Now())))
			_, _ = r.ListConversations(ctx)
		}(i)
	}
	wg.Wait()

	main := readFileState(t, filepath.Join(dir, DefaultMainFile))
	assert.Len(t, main.Conversations, 20)
	assert.Len(t, main.Messages, 20)

	backup := readFileState(t, filepath.Join(dir, DefaultBackupFile))
	assert.Len(t, backup.Messages, 19, "backup is exactly one mutation behind")
}

func TestEmbedded_RunFlushesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	r := NewEmbeddedRepository(EmbeddedOptions{Dir: dir, FlushInterval: 10 * time.Millisecond}, logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DefaultMainFile))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "interval flush writes the main file")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, "shutdown", readFileState(t, filepath.Join(dir, DefaultMainFile)).Operation)
}

func TestEmbedded_CloseAfterRunKeepsPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	r := newEmbedded(t, dir)
	r.flushInterval = time.Hour
	require.NoError(t, r.UpsertConversation(context.Background(), &models.ConversationInput{ID: "c1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	require.NoError(t, r.Close())

	mainRaw, err := os.ReadFile(filepath.Join(dir, DefaultMainFile))
	require.NoError(t, err)
	backupRaw, err := os.ReadFile(filepath.Join(dir, DefaultBackupFile))
	require.NoError(t, err)
	assert.NotEqual(t, string(mainRaw), string(backupRaw))

	assert.Equal(t, "shutdown", readFileState(t, filepath.Join(dir, DefaultMainFile)).Operation)
	assert.Equal(t, "upsertConversation:c1", readFileState(t, filepath.Join(dir, DefaultBackupFile)).Operation)
}

func TestEmbedded_CloseFlushesWhenShutdownFlushFailed(t *testing.T) {
	dir := t.TempDir()
	r := newEmbedded(t, dir)
	r.flushInterval = time.Hour

	orig := writeMainFile
	t.Cleanup(func() { writeMainFile = orig })
	writeMainFile = func(path string, data []byte, perm os.FileMode) error { return errors.New("read-only fs") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	writeMainFile = orig
	require.NoError(t, r.Close())
	assert.Equal(t, "close", readFileState(t, filepath.Join(dir, DefaultMainFile)).Operation)
}

func TestEmbedded_Close(t *testing.T) {
	dir := t.TempDir()
	r := newEmbedded(t, dir)
	require.NoError(t, r.Close())
	assert.Equal(t, "close", readFileState(t, filepath.Join(dir, DefaultMainFile)).Operation)
}
