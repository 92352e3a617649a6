package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffImage(t *testing.T) {
	mimeType, ext, err := SniffImage([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, ".png", ext)

	mimeType, ext, err = SniffImage([]byte("\xff\xd8\xff\xe0 jfif"))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, ".jpg", ext)
}

func TestSniffImage_RejectsOtherContent(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello world"), []byte("%PDF-1.7\n")} {
		_, _, err := SniffImage(data)
		assert.True(t, errors.Is(err, ErrNotImage), "data %q", data)
	}
}

func TestSniffImageFile(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0644))
	_, ext, err := SniffImageFile(png)
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	txt := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(txt, []byte("not a picture"), 0644))
	_, _, err = SniffImageFile(txt)
	assert.ErrorIs(t, err, ErrNotImage)

	_, _, err = SniffImageFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestContentName(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\n0000")
	name := ContentName(data, ".png")
	assert.Len(t, name, 9+64+4)
	assert.Equal(t, ContentHash(data)+".png", name[9:])
	assert.False(t, IsOlderThan(name, time.Minute))
}
