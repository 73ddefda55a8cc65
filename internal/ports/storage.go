package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the provider's handle for the object; for gdrive this is
	// the file id rather than the requested key.
	ObjectKey string
	// Location is what the job returns as video_path.
	Location string
	Size     int64
}

// StorageProvider is a durable store for finished artifacts
// (localfs, gdrive, s3).
type StorageProvider interface {
	Provider() string
	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
}

// FileMover is implemented by providers that can take ownership of a local
// file without streaming it. After a successful move src no longer exists.
type FileMover interface {
	MoveFile(ctx context.Context, src, objectKey string) (PutObjectOutput, error)
}
