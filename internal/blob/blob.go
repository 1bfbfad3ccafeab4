// Package blob stores uploaded documents (invoices, contracts, receipts)
// referenced from file fields by their blob id.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a blob id does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// Info describes a stored blob.
type Info struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the interface for blob storage backends.
type Store interface {
	// Put uploads the contents of r under a freshly generated blob id.
	Put(ctx context.Context, accountID, name, contentType string, r io.Reader) (*Info, error)
	// Get returns the blob's metadata and a reader over its contents.
	// The caller closes the reader.
	Get(ctx context.Context, accountID, id string) (*Info, io.ReadCloser, error)
	// Delete removes the blob. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, accountID, id string) error
}
