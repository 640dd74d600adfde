// Package object stores uploaded images in a bucket (S3 or local disk) and
// validates them before any bytes leave the process.
package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxBytes is the upload ceiling when none is configured.
	DefaultMaxBytes int64 = 10 << 20
	sniffLen              = 512
	keyPrefix             = "story-images"
)

var (
	ErrInvalidType = errors.New("only image uploads are allowed")
	ErrTooLarge    = errors.New("file exceeds the upload size limit")
	ErrEmpty       = errors.New("file is empty")
)

// Bucket is a flat object store addressed by key.
type Bucket interface {
	// Upload stores body under key and returns the object's public URL.
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL maps a public URL produced by Upload back to its key.
	KeyFromURL(url string) (string, bool)
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".bmp":  "image/bmp",
}

// ValidateImage checks an upload by extension, sniffed content and size and
// returns the content type to store it with.
func ValidateImage(filename string, size int64, head []byte, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size <= 0 || len(head) == 0 {
		return "", ErrEmpty
	}
	if size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, maxBytes)
	}

	ext := strings.ToLower(path.Ext(filename))
	declared, ok := imageExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidType, ext)
	}

	sniffed := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(sniffed, "image/"):
		return sniffed, nil
	case ext == ".avif" && sniffed == "application/octet-stream":
		// DetectContentType has no AVIF signature.
		return declared, nil
	default:
		return "", fmt.Errorf("%w: content is %s", ErrInvalidType, sniffed)
	}
}

// ImageKey builds the object key for an upload. Preview images are grouped
// by story id; inline images get a random name.
func ImageKey(storyID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if storyID == "" {
		return fmt.Sprintf("%s/inline/%s%s", keyPrefix, uuid.NewString(), ext)
	}
	return fmt.Sprintf("%s/%s-%d%s", keyPrefix, storyID, now.UnixMilli(), ext)
}

// cleanKey strips leading slashes and collapses duplicate separators.
func cleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}
