package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"comfybridge/internal/ports"
)

// LocalFS stores objects under a root directory, typically a network
// volume mounted into the worker.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object_key escapes storage root: %s", objectKey)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	tmp := dst + ".part"
	outF, err := os.Create(tmp)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	n, err := io.Copy(outF, in.Reader)
	if cerr := outF.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Location: dst, Size: n}, nil
}

// MoveFile renames src into the store. When src lives on another device
// the file is copied and src removed.
func (l *LocalFS) MoveFile(ctx context.Context, src, objectKey string) (ports.PutObjectOutput, error) {
	dst, err := l.path(objectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	err = os.Rename(src, dst)
	if err == nil {
		var size int64
		if st, statErr := os.Stat(dst); statErr == nil {
			size = st.Size()
		}
		return ports.PutObjectOutput{ObjectKey: objectKey, Location: dst, Size: size}, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return ports.PutObjectOutput{}, err
	}

	f, err := os.Open(src)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	out, err := l.PutObject(ctx, ports.PutObjectInput{ObjectKey: objectKey, Reader: f})
	f.Close()
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.Remove(src); err != nil {
		return ports.PutObjectOutput{}, err
	}
	return out, nil
}

var (
	_ ports.StorageProvider = (*LocalFS)(nil)
	_ ports.FileMover       = (*LocalFS)(nil)
)
