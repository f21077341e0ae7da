package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Key spaces inside a project's prefix
const (
	SpaceSource  = "src"
	SpaceOutput  = "out"
	SpacePreview = "preview"
)

// ObjectStore reads, writes and presigns project files on MinIO or any
// S3-compatible endpoint
type ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// Config for the object store connection
type Config struct {
	Endpoint  string // empty for real AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	URLExpiry time.Duration
}

// New creates an object store client
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO has no virtual-host buckets
		}
	})

	ttl := cfg.URLExpiry
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &ObjectStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     ttl,
	}, nil
}

// Key builds the object key for a project file in one of the key spaces
func Key(userID, projectID, space, name string) string {
	return fmt.Sprintf("users/%s/projects/%s/%s/%s", userID, projectID, space, name)
}

// Put uploads an object
func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited URL clients can fetch the object from
func (s *ObjectStore) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes one object; a missing key is not an error
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
