package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/provider-bills/internal/common"
)

func TestFSStore_PutGetListMove(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "data/ProviderBills/pdf/b.pdf", []byte("B")))
	require.NoError(t, s.Put(ctx, "data/ProviderBills/pdf/a.pdf", []byte("A")))
	require.NoError(t, s.Put(ctx, "data/ProviderBills/json/a.json", []byte("{}")))

	keys, err := s.List(ctx, "data/ProviderBills/pdf/")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/ProviderBills/pdf/a.pdf", "data/ProviderBills/pdf/b.pdf"}, keys)

	got, err := s.Get(ctx, "data/ProviderBills/pdf/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	require.NoError(t, s.Move(ctx, "data/ProviderBills/pdf/a.pdf", "data/ProviderBills/pdf/archive/a.pdf"))
	_, err = s.Get(ctx, "data/ProviderBills/pdf/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = s.Move(ctx, "data/ProviderBills/pdf/a.pdf", "elsewhere.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	data, key, err := GetFirst(ctx, s, "data/ProviderBills/pdf/archive/missing.pdf", "data/ProviderBills/pdf/archive/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "data/ProviderBills/pdf/archive/a.pdf", key)
	assert.Equal(t, "A", string(data))
}

func TestFSStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	created, err := PutIfAbsent(ctx, s, "x/one.pdf", []byte("first"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = PutIfAbsent(ctx, s, "x/one.pdf", []byte("second"))
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.Get(ctx, "x/one.pdf")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"data/ProviderBills/pdf/x.pdf", "data/ProviderBills/pdf/x.pdf", false},
		{"/data//x.pdf", "data/x.pdf", false},
		{`data\x.pdf`, "data/x.pdf", false},
		{"report..v2.pdf", "report..v2.pdf", false},
		{"../etc/passwd", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"missing object", fmt.Errorf("a.pdf: %w", ErrNotFound), false},
		{"bad key", errors.Join(common.ErrInvalidInput, errors.New("empty key")), false},
		{"cancelled", context.Canceled, false},
		{"permission", &os.PathError{Op: "open", Path: "a.pdf", Err: os.ErrPermission}, false},
		{"throttled", fmt.Errorf("read: %w", &googleapi.Error{Code: 429}), true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"forbidden", &googleapi.Error{Code: 403}, false},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"reset", fmt.Errorf("copy: %w", syscall.ECONNRESET), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
