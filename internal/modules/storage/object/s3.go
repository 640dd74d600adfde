package object

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appcfg "github.com/inkwell-space/core/internal/config"
)

// s3API is the subset of the S3 client the bucket needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Bucket stores objects in an S3-compatible bucket.
type S3Bucket struct {
	client     s3API
	bucket     string
	publicBase string
}

func NewS3Bucket(cfg appcfg.S3StorageConfig) (*S3Bucket, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	if bucket == "" || region == "" {
		return nil, fmt.Errorf("incomplete s3 config: bucket and region are required")
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint %q: %w", endpoint, err)
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Bucket{
		client:     s3.New(opts),
		bucket:     bucket,
		publicBase: s3PublicBase(cfg.PublicURL, endpoint, bucket, region, cfg.PathStyle),
	}, nil
}

func s3PublicBase(publicURL, endpoint, bucket, region string, pathStyle bool) string {
	if v := strings.TrimRight(strings.TrimSpace(publicURL), "/"); v != "" {
		return v
	}
	if endpoint == "" {
		if pathStyle {
			return fmt.Sprintf("https://s3.%s.amazonaws.com/%s", region, bucket)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	if pathStyle {
		return endpoint + "/" + bucket
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "/" + bucket
	}
	u.Host = bucket + "." + u.Host
	return strings.TrimRight(u.String(), "/")
}

func (b *S3Bucket) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key = cleanKey(key)
	if key == "" {
		return "", fmt.Errorf("invalid object key")
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return b.publicBase + "/" + key, nil
}

func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(cleanKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (b *S3Bucket) KeyFromURL(raw string) (string, bool) {
	prefix := b.publicBase + "/"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	key := cleanKey(strings.TrimPrefix(raw, prefix))
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}
