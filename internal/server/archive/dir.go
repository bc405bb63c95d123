package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/filex"
)

// DirClient keeps snapshots as files in a single local directory.
type DirClient struct {
	dir string
}

func NewDirClient(dir string) (*DirClient, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemoteArchive, err)
	}
	return &DirClient{dir: abs}, nil
}

// path rejects names that would escape the directory.
func (c *DirClient) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid object name %q", common.ErrRemoteArchive, name)
	}
	return filepath.Join(c.dir, name), nil
}

func (c *DirClient) Upload(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrRemoteArchive, err)
	}
	p, err := c.path(name)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(p, data, 0o600); err != nil {
		return fmt.Errorf("%w: upload %s: %w", common.ErrRemoteArchive, name, err)
	}
	return nil
}

func (c *DirClient) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemoteArchive, err)
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", common.ErrRemoteArchive, err)
	}

	var out []Object
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Object{
			Name:         e.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}
	return out, nil
}

func (c *DirClient) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrRemoteArchive, err)
	}
	p, err := c.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("%w: delete %s: %w", common.ErrRemoteArchive, name, err)
	}
	return nil
}
