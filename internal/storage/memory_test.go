package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/estatio/docrender/internal/document"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage("previews")
	s.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Put(ctx, "a/b.txt", []byte("hi"), "text/plain"))
	got, err := s.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), got)
	require.Equal(t, "text/plain", s.ContentType("a/b.txt"))

	u, err := s.PresignedURL(ctx, "a/b.txt", time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "memory://previews/a/b.txt?"))
	require.Contains(t, u, "2021-01-01T01%3A00%3A00Z")

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = s.PresignedURL(ctx, "missing", time.Hour)
	require.ErrorIs(t, err, document.ErrNotFound)
}
