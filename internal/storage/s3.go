package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Storage = (*S3)(nil)

// s3API is the part of *s3.Client the backend uses; tests substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures an S3 or MinIO bucket.
type S3Options struct {
	Region    string
	Endpoint  string // empty for AWS, e.g. "http://localhost:9000" for MinIO
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicURL is prefixed to references to build download links,
	// e.g. "https://cdn.example.com".
	PublicURL string
}

// S3 stores objects in one bucket with the reference as the key.
type S3 struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3 loads the AWS configuration for opts.Region, overriding the
// credentials and endpoint when they are set (MinIO, LocalStack).
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := opts.PublicURL
	if publicURL == "" && opts.Endpoint != "" {
		publicURL = opts.Endpoint + "/" + opts.Bucket
	}

	return &S3{client: client, bucket: opts.Bucket, publicURL: publicURL}, nil
}

// Save uploads the object with a JPEG content type.
func (s *S3) Save(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	key := joinRef(folder, name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: uploading %s: %w", key, err)
	}
	return key, nil
}

// Remove deletes the object; S3 does not report missing keys.
func (s *S3) Remove(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("storage: deleting %s: %w", ref, err)
	}
	return nil
}

// URL joins the public base URL and the reference.
func (s *S3) URL(ref string) string {
	return joinURL(s.publicURL, ref)
}
