package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore keeps objects in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	log    *slog.Logger
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, bucket string, log *slog.Logger) (*GCSStore, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), log: log}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs object %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs object %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	s.log.Debug("storage.put", "key", key, "bytes", len(data))
	return nil
}

// PutIfAbsent writes key only when no object exists there yet. created is
// false when the object was already present.
func (s *GCSStore) PutIfAbsent(ctx context.Context, key string, data []byte) (created bool, err error) {
	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return false, preconditionOK(key, err, s.log)
	}
	if err := w.Close(); err != nil {
		return false, preconditionOK(key, err, s.log)
	}
	return true, nil
}

func preconditionOK(key string, err error, log *slog.Logger) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		log.Info("storage.put skipped, object exists", "key", key)
		return nil
	}
	return fmt.Errorf("failed to write to GCS: %w", err)
}

// Move copies src to dst then deletes src; GCS has no rename.
func (s *GCSStore) Move(ctx context.Context, src, dst string) error {
	from := s.bucket.Object(src)
	if _, err := s.bucket.Object(dst).CopierFrom(from).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := from.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s after copy: %w", src, err)
	}
	s.log.Debug("storage.move", "src", src, "dst", dst)
	return nil
}
