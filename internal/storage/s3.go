package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/logging"
)

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the bucket
	Region string

	// Endpoint is an optional custom endpoint (MinIO, LocalStack); setting it
	// implies path-style addressing
	Endpoint string

	// PartSize is both the multipart threshold and the part size in bytes
	PartSize int64

	// MaxRetries bounds upload attempts after the first
	MaxRetries int
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:     "us-east-1",
		PartSize:   5 * 1024 * 1024,
		MaxRetries: 3,
	}
}

// contentTypes maps published file extensions to their MIME types.
var contentTypes = map[string]string{
	".zip": "application/zip",
	".csv": "text/csv; charset=utf-8",
}

func contentType(key string) string {
	if ct, ok := contentTypes[path.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// S3Storage publishes archives and tables to an S3 bucket.
type S3Storage struct {
	client *s3.Client
	bucket string
	cfg    S3Config
	logger *zap.Logger
}

// NewS3Storage creates an S3 client for bucket from the default AWS
// credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config, logger *zap.Logger) (*S3Storage, error) {
	defaults := DefaultS3Config()
	if cfg.Region == "" {
		cfg.Region = defaults.Region
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = defaults.PartSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client: client,
		bucket: bucket,
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}, nil
}

// Upload copies the file at localPath to objectPath, retrying with
// exponential backoff. Files above the part size use a multipart upload.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	size := stat.Size()

	upload := func() error {
		if size > s.cfg.PartSize {
			return s.putMultipart(ctx, file, size, objectPath)
		}
		return s.put(ctx, io.NewSectionReader(file, 0, size), size, objectPath)
	}
	if err := s.withRetry(ctx, objectPath, upload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, objectPath, err)
	}
	return nil
}

func (s *S3Storage) put(ctx context.Context, body io.Reader, size int64, key string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(key)),
	})
	return err
}

func (s *S3Storage) putMultipart(ctx context.Context, file *os.File, size int64, key string) error {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return err
	}
	uploadID := created.UploadId

	var parts []s3types.CompletedPart
	for offset, n := int64(0), int32(1); offset < size; offset, n = offset+s.cfg.PartSize, n+1 {
		length := min(s.cfg.PartSize, size-offset)
		resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(n),
			Body:          io.NewSectionReader(file, offset, length),
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			s.abort(ctx, key, uploadID)
			return err
		}
		parts = append(parts, s3types.CompletedPart{ETag: resp.ETag, PartNumber: aws.Int32(n)})
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		s.abort(ctx, key, uploadID)
	}
	return err
}

// abort is best-effort; an orphaned upload is reclaimed by bucket lifecycle rules.
func (s *S3Storage) abort(ctx context.Context, key string, uploadID *string) {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		s.logger.Warn("failed to abort multipart upload", zap.String("key", key), zap.Error(err))
	}
}

// ListObjects returns every key under prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// withRetry runs op up to MaxRetries+1 times, doubling the delay from 100ms.
func (s *S3Storage) withRetry(ctx context.Context, key string, op func() error) error {
	delay := 100 * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= s.cfg.MaxRetries {
			return err
		}
		s.logger.Debug("retrying upload",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
