// Package storage defines the common interfaces for object storage adapters.
//
// The CSV source and the Parquet exporter talk to storage only through
// StorageConnection, so a local directory and a GCS bucket are interchangeable.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads the object. The caller must close the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, closable storage handle.
type StorageConnection interface {
	StorageExecutor

	Close() error
	// Type returns the provider type ("local", "gcs").
	Type() string
	// Name returns the configured connection name.
	Name() string
	// Config returns the configuration the connection was opened with.
	Config() StorageConfig
}

// StorageProvider opens and caches connections of one type.
type StorageProvider interface {
	// GetConnection retrieves the connection with the specified name, opening it on first use.
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the provider type this provider serves.
	Type() string
}
