package remoteconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interactions.json")
	src := NewFileSource[interaction](path, nil)

	_, ok, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "missing file is no config")

	writeFile(t, path, `{"data":[{"name":"tap","enabled":true}]}`)
	items, ok, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interaction{{Name: "tap", Enabled: true}}, items)

	writeFile(t, path, `{"data":null,"error":{"message":"disabled"}}`)
	_, ok, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	writeFile(t, path, `not json at all`)
	_, ok, err = src.Fetch(context.Background())
	assert.False(t, ok)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, decodeErr.Preview, "not json at all")

	assert.Equal(t, "file:"+path, src.Name())
}

func TestFileSource_CancelledContext(t *testing.T) {
	src := NewFileSource[interaction](filepath.Join(t.TempDir(), "x.json"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := src.Fetch(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interactions.json")
	src := NewFileSource[interaction](path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx)
	require.NoError(t, err)

	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "other.json"), "{}")
	select {
	case <-changes:
		t.Fatal("unexpected change signal for another file")
	case <-time.After(100 * time.Millisecond):
	}

	writeFile(t, path, `{"data":[]}`)
	select {
	case _, ok := <-changes:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after writing the watched file")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileSource_WatchMissingDirectory(t *testing.T) {
	src := NewFileSource[interaction](filepath.Join(t.TempDir(), "missing", "x.json"), nil)
	_, err := src.Watch(context.Background())
	assert.Error(t, err)
}
