// Package storage publishes pipeline outputs to object storage.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrUploadFailed = errors.New("upload failed")
	ErrListFailed   = errors.New("list failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
