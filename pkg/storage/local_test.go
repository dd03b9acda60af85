package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageWriteReadList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "sessions/r1/a.json", strings.NewReader(`{"a":1}`), -1, "application/json"))

	ok, err := s.Exists(ctx, "sessions/r1/a.json")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Read(ctx, "sessions/r1/a.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	keys, err := s.List(ctx, "sessions/r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions/r1/a.json"}, keys)
}

func TestLocalStorageMissingKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Read(ctx, "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "nope.json")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStorageKeepsKeysInsideBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../../escape.json", strings.NewReader("x"), 1, ""))

	ok, err := s.Exists(ctx, "escape.json")
	require.NoError(t, err)
	assert.True(t, ok)
}
