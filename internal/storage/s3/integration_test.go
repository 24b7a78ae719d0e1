//go:build integration

package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sqlassist/sqlassist/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("SQLASSIST_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("SQLASSIST_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("SQLASSIST_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("SQLASSIST_TEST_S3_BUCKET", "sqlassist-it"),
		AccessKeyID:      envOr("SQLASSIST_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("SQLASSIST_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "datasets/orders/" + time.Now().UTC().Format("20060102T150405.000000000") + ".parquet"
	payload := []byte("sqlassist-integration")
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	objects, err := store.List(ctx, "datasets/orders/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, object := range objects {
		if object.Key == key {
			found = object.Size == int64(len(payload))
		}
	}
	if !found {
		t.Fatalf("List() = %#v, want %q", objects, key)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	_ = reader.Close()
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(readPayload), string(payload))
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	localPath := filepath.Join(t.TempDir(), "orders.parquet")
	if err := store.Download(ctx, key, localPath); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	downloaded, err := os.ReadFile(localPath)
	if err != nil || !bytes.Equal(downloaded, payload) {
		t.Fatalf("downloaded = %q, err = %v", downloaded, err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
