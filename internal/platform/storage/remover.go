package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Remover deletes objects from a Cloud Storage bucket.
type Remover struct {
	client *gcs.Client
}

// NewRemover constructs a Remover backed by the provided Cloud Storage client.
func NewRemover(client *gcs.Client) (*Remover, error) {
	if client == nil {
		return nil, errors.New("storage remover: client is required")
	}
	return &Remover{client: client}, nil
}

// DeleteObject removes the object. Missing objects are not an error.
func (r *Remover) DeleteObject(ctx context.Context, bucket, object string) error {
	if r == nil || r.client == nil {
		return errors.New("storage remover: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage remover: bucket and object must be provided")
	}
	err := r.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
