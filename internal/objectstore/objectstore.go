// Package objectstore uploads synthesized audio to an S3-compatible
// bucket and hands back public URLs for outbound media messages.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// s3API is the slice of the S3 client this package uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Store uploads audio objects.
type Store struct {
	client  s3API
	cfg     config.StorageConfig
	metrics *observability.Metrics
}

// New builds a store from config. metrics may be nil.
func New(ctx context.Context, cfg config.StorageConfig, metrics *observability.Metrics) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
		cfg.Region = region
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg, metrics), nil
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client s3API, cfg config.StorageConfig, metrics *observability.Metrics) *Store {
	return &Store{client: client, cfg: cfg, metrics: metrics}
}

// PutAudio uploads MP3 bytes under a fresh uuid key and returns the
// public URL. A missing bucket is created on the spot and the upload
// retried once; any other failure propagates.
func (s *Store) PutAudio(ctx context.Context, audio []byte) (string, error) {
	key := "audio/" + uuid.NewString() + ".mp3"

	err := s.put(ctx, key, audio)
	if err != nil && isNoSuchBucket(err) {
		if _, cbErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(s.cfg.Bucket),
		}); cbErr != nil {
			return "", fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, cbErr)
		}
		err = s.put(ctx, key, audio)
	}
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("audio/mpeg"),
	})
	s.record(err, start)
	return err
}

func (s *Store) record(err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordVendorRequest("s3", status, time.Since(start).Seconds())
}

// isNoSuchBucket matches the service error for a missing bucket.
func isNoSuchBucket(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucket"
	}
	return false
}

func (s *Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
