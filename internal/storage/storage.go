package storage

import (
	"context"
	"errors"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

var ErrStorageDisabled = errors.New("object storage is disabled")

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// PutObject stores body under objectKey.
	PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

// NoopStorage is used when no bucket is configured. Writes and reads report
// ErrStorageDisabled; deletes succeed.
type NoopStorage struct{}

func (NoopStorage) PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error {
	return ErrStorageDisabled
}

func (NoopStorage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	return "", ErrStorageDisabled
}

func (NoopStorage) DeleteObject(ctx context.Context, objectKey string) error {
	return nil
}

// GenerationArchiveKey is the object key for the raw output of one generation request.
func GenerationArchiveKey(producerID, requestID string) string {
	return "generations/" + producerID + "/" + requestID + ".json"
}
