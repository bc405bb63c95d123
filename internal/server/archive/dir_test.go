package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirClient_UploadListDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "archive")

	c, err := NewDirClient(dir)
	require.NoError(t, err)

	require.NoError(t, c.Upload(ctx, "snap-a.json", []byte("aaa")))
	require.NoError(t, c.Upload(ctx, "snap-b.json", []byte("bbbbb")))
	require.NoError(t, c.Upload(ctx, "other.json", []byte("x")))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "snap-dir"), 0o700))

	objs, err := c.List(ctx, "snap-")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "snap-a.json", objs[0].Name)
	assert.Equal(t, int64(3), objs[0].Size)
	assert.False(t, objs[0].LastModified.IsZero())

	require.NoError(t, c.Delete(ctx, "snap-a.json"))
	objs, err = c.List(ctx, "snap-")
	require.NoError(t, err)
	require.Len(t, objs, 1)

	err = c.Delete(ctx, "snap-a.json")
	require.ErrorIs(t, err, common.ErrRemoteArchive)
}

func TestDirClient_RejectsEscapingNames(t *testing.T) {
	c, err := NewDirClient(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x.json", "a/b.json"} {
		assert.ErrorIs(t, c.Upload(context.Background(), name, nil), common.ErrRemoteArchive, name)
	}
}

func TestDirClient_CanceledContext(t *testing.T) {
	c, err := NewDirClient(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Upload(ctx, "a.json", nil), context.Canceled)
	_, err = c.List(ctx, "")
	require.ErrorIs(t, err, common.ErrRemoteArchive)
}
