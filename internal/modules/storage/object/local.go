package object

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket writes objects under a directory that the HTTP server serves
// at publicPath. URLs are absolute when baseURL is set.
type LocalBucket struct {
	dir        string
	publicPath string
	baseURL    string
}

func NewLocalBucket(dir, publicPath, baseURL string) (*LocalBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &LocalBucket{
		dir:        dir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir is the directory to serve at PublicPath.
func (b *LocalBucket) Dir() string { return b.dir }

func (b *LocalBucket) PublicPath() string { return b.publicPath }

// resolve maps key to a file path inside dir, rejecting escapes.
func (b *LocalBucket) resolve(key string) (string, error) {
	key = cleanKey(key)
	if key == "" {
		return "", fmt.Errorf("invalid object key")
	}
	full := filepath.Join(b.dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes bucket", key)
	}
	return full, nil
}

func (b *LocalBucket) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	full, err := b.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return b.baseURL + b.publicPath + "/" + cleanKey(key), nil
}

func (b *LocalBucket) Delete(_ context.Context, key string) error {
	full, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// KeyFromURL accepts both the bare public path and absolute URLs ending in it.
func (b *LocalBucket) KeyFromURL(raw string) (string, bool) {
	marker := b.publicPath + "/"
	i := strings.Index(raw, marker)
	if i < 0 {
		return "", false
	}
	key := cleanKey(raw[i+len(marker):])
	if j := strings.IndexAny(key, "?#"); j >= 0 {
		key = key[:j]
	}
	return key, key != ""
}
