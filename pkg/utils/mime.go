package utils

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
)

// sniffLen is how many leading bytes http.DetectContentType considers.
const sniffLen = 512

// ErrNotImage is returned for screenshot data that does not sniff as an image.
var ErrNotImage = errors.New("not an image")

// imageExts pins the extensions of the formats capture tools produce, since
// mime.ExtensionsByType ordering depends on the host's mime tables.
var imageExts = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// SniffImage reports the MIME type and file extension of screenshot data.
// Content that is not an image yields ErrNotImage.
func SniffImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: empty data", ErrNotImage)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return mimeType, "", fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}
	if ext, ok := imageExts[mimeType]; ok {
		return mimeType, ext, nil
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return mimeType, exts[0], nil
	}
	return mimeType, ".img", nil
}

// SniffImageFile is SniffImage over the first bytes of a file on disk.
func SniffImageFile(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	return SniffImage(buf[:n])
}
