package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zipcorpus/zipcorpus/internal/config"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/logging"
)

// Open builds the object storage selected by cfg. It returns nil, nil when
// publishing is disabled.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ObjectStorage, error) {
	switch cfg.Type {
	case "", config.StorageNone:
		return nil, nil
	case config.StorageLocal:
		return NewLocalStorage(cfg.Path)
	case config.StorageS3:
		s3cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		return NewS3Storage(ctx, cfg.S3.Bucket, s3cfg, logger)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", cfg.Type)
	}
}

// Publisher uploads local files to object storage under a key prefix.
type Publisher struct {
	storage     ObjectStorage
	prefix      string
	concurrency int
	logger      *zap.Logger
}

// PublishResult describes a completed publish.
type PublishResult struct {
	// Keys holds the object key of each published file, in input order
	Keys []string

	// Bytes is the total size of the published files
	Bytes int64
}

// NewPublisher creates a publisher.
// storage: the ObjectStorage implementation to upload to
// prefix: key prefix for every object (may be empty)
// concurrency: maximum number of parallel uploads (<= 0 means 4)
func NewPublisher(storage ObjectStorage, prefix string, concurrency int, logger *zap.Logger) *Publisher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Publisher{
		storage:     storage,
		prefix:      prefix,
		concurrency: concurrency,
		logger:      logging.OrNop(logger),
	}
}

// Key returns the object key for a local file name.
func (p *Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish uploads every file in paths under its base name, then lists the
// prefix to confirm all keys are present. Any failed upload fails the
// publish with a retryable upload error naming the first failed file.
func (p *Publisher) Publish(ctx context.Context, paths []string) (*PublishResult, error) {
	result := &PublishResult{Keys: make([]string, len(paths))}
	errs := make([]error, len(paths))
	sem := semaphore.NewWeighted(int64(p.concurrency))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, local := range paths {
		key := p.Key(filepath.Base(local))
		result.Keys[i] = key

		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = fmt.Errorf("semaphore acquire failed: %w", err)
			continue
		}

		wg.Add(1)
		go func(i int, local, key string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := p.storage.Upload(ctx, local, key); err != nil {
				errs[i] = err
				return
			}
			if info, err := os.Stat(local); err == nil {
				mu.Lock()
				result.Bytes += info.Size()
				mu.Unlock()
			}
		}(i, local, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, apperrors.NewStorageError(apperrors.CodeUploadFailed,
				fmt.Sprintf("publish %s", paths[i]), err)
		}
	}

	if err := p.confirm(ctx, result.Keys); err != nil {
		return nil, err
	}

	p.logger.Info("published objects",
		zap.Int("objects", len(result.Keys)),
		zap.Int64("bytes", result.Bytes),
		zap.String("prefix", p.prefix))

	return result, nil
}

// confirm checks that every key is listed under the prefix.
func (p *Publisher) confirm(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	listed, err := p.storage.ListObjects(ctx, p.prefix)
	if err != nil {
		return apperrors.NewStorageError(apperrors.CodeUploadFailed, "list published objects", err)
	}

	present := make(map[string]struct{}, len(listed))
	for _, k := range listed {
		present[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			return apperrors.NewStorageError(apperrors.CodeUploadFailed,
				fmt.Sprintf("published object %s not listed", k), nil)
		}
	}
	return nil
}
