package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

// ErrS3NotConfigured is returned when the bucket or credentials are missing.
var ErrS3NotConfigured = errors.New("S3 is not configured")

// S3Backend puts recordings into an S3-compatible bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend creates a backend for cfg.
func NewS3Backend(cfg *types.S3Config) (*S3Backend, error) {
	if !cfg.IsConfigured() {
		return nil, ErrS3NotConfigured
	}
	return &S3Backend{
		client: createS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *types.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Name implements Backend.
func (b *S3Backend) Name() string {
	return "s3"
}

// Key returns the object key for a local file.
func (b *S3Backend) Key(localPath string) string {
	return path.Join(b.prefix, filepath.Base(localPath))
}

// Upload implements Backend.
func (b *S3Backend) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer file.Close() //nolint:errcheck // Read-only

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat recording: %w", err)
	}

	key := b.Key(localPath)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + b.bucket + "/" + key, nil
}

// contentType returns the MIME type for a recording file.
func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
