package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const defaultUploadTimeout = 30 * time.Second

var (
	errInvalidBucket     = errors.New("storage: bucket name is required")
	errInvalidObject     = errors.New("storage: object name is required")
	errContentTypeDenied = errors.New("storage: content type not allowed")
	errNilReader         = errors.New("storage: reader is required")
)

// Uploader stores customer-supplied return evidence images in a bucket.
type Uploader struct {
	client       *storage.Client
	bucket       string
	allowedTypes []string
	timeout      time.Duration
}

// UploaderOption customises uploader behaviour.
type UploaderOption func(*Uploader)

// WithAllowedContentTypes restricts the accepted content types. Entries may
// use a trailing wildcard, e.g. "image/*".
func WithAllowedContentTypes(types ...string) UploaderOption {
	return func(u *Uploader) {
		u.allowedTypes = append(u.allowedTypes, types...)
	}
}

// WithUploadTimeout overrides the per-object upload timeout.
func WithUploadTimeout(timeout time.Duration) UploaderOption {
	return func(u *Uploader) {
		if timeout > 0 {
			u.timeout = timeout
		}
	}
}

// NewUploader constructs an Uploader writing into the named bucket.
func NewUploader(client *storage.Client, bucket string, opts ...UploaderOption) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errInvalidBucket
	}

	uploader := &Uploader{
		client:  client,
		bucket:  strings.TrimSpace(bucket),
		timeout: defaultUploadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uploader)
		}
	}
	return uploader, nil
}

// Upload streams the object into the bucket and returns its gs:// URI.
func (u *Uploader) Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("storage: uploader not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if r == nil {
		return "", errNilReader
	}
	if len(u.allowedTypes) > 0 && !contentTypeAllowed(contentType, u.allowedTypes) {
		return "", errContentTypeDenied
	}

	uploadCtx := ctx
	var cancel context.CancelFunc
	if u.timeout > 0 {
		uploadCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(uploadCtx)
	w.ContentType = strings.TrimSpace(contentType)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, object), nil
}

// ReturnImageObject builds the canonical object path for a return evidence
// image.
func ReturnImageObject(orderID, productID, filename string) string {
	return path.Join("returns", orderID, productID, filename)
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}
