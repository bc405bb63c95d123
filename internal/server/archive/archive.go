// Package archive stores backup snapshots as named objects in a remote
// folder. S3Client talks to any S3-compatible endpoint; DirClient keeps the
// objects in a local directory.
package archive

import (
	"context"
	"time"
)

// Object describes a stored snapshot. Name is relative to the client's
// folder.
type Object struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// Client is the contract the backup scheduler consumes. Every failure is
// wrapped with common.ErrRemoteArchive. Implementations must not block
// forever: callers rely on ctx for cancellation.
type Client interface {
	Upload(ctx context.Context, name string, data []byte) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, name string) error
}
