package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreUploadDownload(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "https://cdn.example.com/media/")
	require.NoError(t, err)

	url, err := fs.Upload(ctx, []byte("png-bytes"), "generated/p1/img-1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/generated/p1/img-1.png", url)

	data, err := fs.Download(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestFileStoreRejectsTraversalAndForeignURL(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = fs.Upload(ctx, []byte("x"), "../escape.png")
	require.Error(t, err)

	_, err = fs.Download(ctx, "https://elsewhere.example.com/a.png")
	assert.True(t, errors.Is(err, ErrForeignURL))
}

func TestSanitizeKey(t *testing.T) {
	key, err := sanitizeKey(`\\nested\\dir\\file.png`)
	require.NoError(t, err)
	assert.Equal(t, "nested/dir/file.png", key)

	_, err = sanitizeKey("  ")
	assert.Error(t, err)
}
