package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is attached to the object as user metadata.
	Metadata map[string]string
}

// ObjectStore holds dataset parquet files and the interaction archive.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects under prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Downloader is implemented by stores that can write an object straight to
// a local file.
type Downloader interface {
	Download(ctx context.Context, key, localPath string) error
}

func PutBytes(ctx context.Context, store ObjectStore, key string, data []byte, opts PutOptions) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts)
}

// Download copies the object at key to localPath.
func Download(ctx context.Context, store ObjectStore, key, localPath string) error {
	if downloader, ok := store.(Downloader); ok {
		return downloader.Download(ctx, key, localPath)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local file %q: %w", localPath, err)
	}
	return file.Close()
}
