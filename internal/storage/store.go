// Package storage holds the object stores bills, page PDFs and extraction
// artifacts are kept in. Keys are slash separated, e.g.
// data/ProviderBills/pdf/{id}.pdf.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/provider-bills/internal/common"
)

// ErrNotFound is returned by Get and Move when the key does not exist.
var ErrNotFound = fmt.Errorf("object %w", common.ErrNotFound)

// ObjectStore is the blob store the pipeline reads pages from and writes artifacts to.
type ObjectStore interface {
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites key.
	Put(ctx context.Context, key string, data []byte) error
	// Move renames src to dst, overwriting dst.
	Move(ctx context.Context, src, dst string) error
}

// CleanKey normalises key and rejects keys that escape the store root.
func CleanKey(key string) (string, error) {
	k := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if k == "" || k == "." {
		return "", errors.Join(common.ErrInvalidInput, fmt.Errorf("empty object key %q", key))
	}
	for _, seg := range strings.Split(strings.ReplaceAll(key, "\\", "/"), "/") {
		if seg == ".." {
			return "", errors.Join(common.ErrInvalidInput, fmt.Errorf("object key %q escapes root", key))
		}
	}
	return k, nil
}

// GetFirst returns the first of keys that exists, along with the key used.
func GetFirst(ctx context.Context, s ObjectStore, keys ...string) ([]byte, string, error) {
	for _, k := range keys {
		data, err := s.Get(ctx, k)
		if err == nil {
			return data, k, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, k, err
		}
	}
	return nil, "", fmt.Errorf("none of %v: %w", keys, ErrNotFound)
}

// PutIfAbsent writes key unless an object already exists there, using the
// store's conditional write when it has one.
func PutIfAbsent(ctx context.Context, s ObjectStore, key string, data []byte) (bool, error) {
	if c, ok := s.(interface {
		PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error)
	}); ok {
		return c.PutIfAbsent(ctx, key, data)
	}
	if _, err := s.Get(ctx, key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return true, s.Put(ctx, key, data)
}

// IsTransient reports whether a store error is worth retrying: network
// failures, throttling and server errors. Missing objects, bad keys and
// local filesystem errors are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrInvalidInput) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusRequestTimeout || gerr.Code >= 500
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
