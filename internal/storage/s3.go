// Package storage provides the object-storage collaborator used by the
// submission pipeline, backed by any S3-compatible store (AWS S3, MinIO,
// DigitalOcean Spaces). Receipt photos never transit this backend: clients
// upload and the extraction service downloads through presigned URLs; the
// backend itself only probes and deletes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds the connection settings for the S3-compatible store.
type Config struct {
	Endpoint       string // empty for AWS-proper
	Region         string
	Bucket         string
	AccessKeyID    string
	SecretKey      string
	ForcePathStyle bool // required by MinIO
	UploadTTL      time.Duration
	DownloadTTL    time.Duration
}

// UploadTarget describes a presigned PUT the client must perform to deliver
// the receipt photo.
type UploadTarget struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// S3Store wraps an S3 client plus its presigner for one bucket.
type S3Store struct {
	client      *s3.Client
	presigner   *s3.PresignClient
	bucket      string
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

// New builds an S3Store from config. Static credentials are used when
// provided; otherwise the default AWS chain applies.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket must not be empty")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	uploadTTL := cfg.UploadTTL
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}
	downloadTTL := cfg.DownloadTTL
	if downloadTTL <= 0 {
		downloadTTL = 10 * time.Minute
	}

	return &S3Store{
		client:      client,
		presigner:   s3.NewPresignClient(client),
		bucket:      cfg.Bucket,
		uploadTTL:   uploadTTL,
		downloadTTL: downloadTTL,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// PresignUpload issues a time-limited PUT URL for the given key. The client
// must send the matching Content-Type header.
func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string) (*UploadTarget, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.uploadTTL))
	if err != nil {
		return nil, err
	}
	return &UploadTarget{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().UTC().Add(s.uploadTTL),
	}, nil
}

// PresignDownload issues a time-limited GET URL for the given key, handed to
// the extraction service.
func (s *S3Store) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.downloadTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Exists probes the key with a HEAD request. A missing object is reported as
// (false, nil), not an error.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the key. S3 DELETE succeeds on missing keys, which gives
// the idempotent best-effort semantics the pipeline wants for purging
// rejected receipts.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
