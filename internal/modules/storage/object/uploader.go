package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/inkwell-space/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Uploader validates images and puts them in a Bucket.
type Uploader struct {
	bucket   Bucket
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

func NewUploader(bucket Bucket, maxBytes int64, logger *zap.Logger) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{bucket: bucket, maxBytes: maxBytes, logger: logger, now: time.Now}
}

func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// UploadImage validates r and uploads it. storyID scopes the key to a story;
// empty means an inline editor image. Nothing is sent to the bucket unless
// validation passes.
func (u *Uploader) UploadImage(ctx context.Context, storyID, filename string, size int64, r io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType, err := ValidateImage(filename, size, head, u.maxBytes)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return "", err
	}

	// Read one byte past the limit so an understated size is still caught.
	body, err := io.ReadAll(io.LimitReader(io.MultiReader(bytes.NewReader(head), r), u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > u.maxBytes {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return "", ErrTooLarge
	}

	key := ImageKey(storyID, filename, u.now())
	url, err := u.bucket.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
	metrics.Uploads.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}
	u.logger.Info("image uploaded", zap.String("key", key), zap.Int("bytes", len(body)))
	return url, nil
}

// Remove deletes the object behind url. URLs the bucket did not issue are
// ignored.
func (u *Uploader) Remove(ctx context.Context, url string) error {
	key, ok := u.bucket.KeyFromURL(url)
	if !ok {
		return nil
	}
	return u.bucket.Delete(ctx, key)
}

// RemoveQuietly is Remove for cleanup paths: failures are logged only.
func (u *Uploader) RemoveQuietly(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := u.Remove(ctx, url); err != nil {
		u.logger.Warn("object cleanup failed", zap.String("url", url), zap.Error(err))
	}
}
