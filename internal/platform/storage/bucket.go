package storage

import (
	"context"
	"errors"
	"strings"
)

// Bucket binds the signed URL client and remover to a single bucket.
type Bucket struct {
	name    string
	signer  *Client
	remover *Remover
}

// NewBucket returns a bucket handle. remover may be nil when deletions are not needed.
func NewBucket(name string, client *Client, remover *Remover) (*Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidBucket
	}
	if client == nil {
		return nil, errNoSigner
	}
	return &Bucket{name: name, signer: client, remover: remover}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// SignedUploadURL issues an upload URL for object inside the bucket.
func (b *Bucket) SignedUploadURL(ctx context.Context, object string, opts UploadOptions) (SignedURLResult, error) {
	return b.signer.SignedUploadURL(ctx, b.name, object, opts)
}

// PublicURL returns the public read URL of object.
func (b *Bucket) PublicURL(object string) string {
	return PublicURL(b.name, object)
}

// DeleteObject removes object from the bucket.
func (b *Bucket) DeleteObject(ctx context.Context, object string) error {
	if b.remover == nil {
		return errors.New("storage: bucket has no remover configured")
	}
	return b.remover.DeleteObject(ctx, b.name, object)
}
