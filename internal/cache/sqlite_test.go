package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "llm", "cache.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, ok := s.Get(ctx, "missing")
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "summary:abc", []byte("one concise sentence")))
	got, ok := s.Get(ctx, "summary:abc")
	require.True(t, ok)
	require.Equal(t, []byte("one concise sentence"), got)
}

func TestSetReplacesExisting(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("old")))
	require.NoError(t, s.Set(ctx, "k", []byte("new")))

	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("new"), got)
}

func TestExpiredEntriesMiss(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	s.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, ok := s.Get(ctx, "k")
	require.True(t, ok, "entry should still be fresh")

	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, ok = s.Get(ctx, "k")
	require.False(t, ok, "entry should have expired")
}

func TestPurgeRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Set(ctx, "stale", []byte("v")))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, s.Set(ctx, "fresh", []byte("v")))

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok := s.Get(ctx, "fresh")
	require.True(t, ok)
}

func TestReopenKeepsEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "persisted", []byte("yes")))
	require.NoError(t, s.Close())

	s2, err := Open(path, time.Hour)
	require.NoError(t, err)
	defer s2.Close()

	got, ok := s2.Get(ctx, "persisted")
	require.True(t, ok)
	require.Equal(t, []byte("yes"), got)
}

func TestOpenRejectsZeroTTL(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "c.db"), 0)
	require.Error(t, err)
}
