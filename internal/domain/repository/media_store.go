package repository

import (
	"context"
	"io"
)

// MediaStore uploads chat media to blob storage. Uploads are sequenced
// strictly before the message insert so a durable row never points at a
// missing blob.
type MediaStore interface {
	// Upload stores the blob under path and returns its public URL.
	Upload(ctx context.Context, file io.Reader, contentType, path string) (string, error)
	// Delete removes a previously uploaded blob by its public URL. Used to
	// reclaim uploads whose message insert failed.
	Delete(ctx context.Context, fileURL string) error
}
