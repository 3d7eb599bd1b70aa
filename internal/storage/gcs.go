package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"papercast/internal/config"
	"papercast/internal/services"
)

// GCSStore stores episode artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client        *gcs.Client
	bucket        *gcs.BucketHandle
	bucketName    string
	publicBaseURL string
}

// NewGCSStore connects to the configured bucket. Credentials come from the
// configured service account file or ambient application default credentials.
func NewGCSStore(ctx context.Context, cfg *config.Config) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return nil, services.Wrap(services.ErrValidation, "storage", "connect", "bucket name required", nil)
	}

	var opts []option.ClientOption
	if cfg.Storage.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Storage.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "storage", "connect", "create storage client", err)
	}

	return &GCSStore{
		client:        client,
		bucket:        client.Bucket(cfg.Storage.Bucket),
		bucketName:    cfg.Storage.Bucket,
		publicBaseURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// PutBlob writes raw bytes, overwriting any existing object.
func (s *GCSStore) PutBlob(ctx context.Context, path string, data []byte, contentType string) error {
	writer := s.bucket.Object(path).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return s.wrapError("put blob", path, err)
	}
	if err := writer.Close(); err != nil {
		return s.wrapError("put blob", path, err)
	}
	return nil
}

// PutJSON marshals value and overwrites the object at path.
func (s *GCSStore) PutJSON(ctx context.Context, path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "put json", fmt.Sprintf("marshal %s", path), err)
	}
	return s.PutBlob(ctx, path, encoded, ContentTypeJSON)
}

// PutJSONIfAbsent writes the record only when path is unoccupied. The
// create-only precondition is enforced by the bucket, not a read check,
// so two concurrent writers cannot both win.
func (s *GCSStore) PutJSONIfAbsent(ctx context.Context, path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "put json", fmt.Sprintf("marshal %s", path), err)
	}

	writer := s.bucket.Object(path).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = ContentTypeJSON
	if _, err := io.Copy(writer, bytes.NewReader(encoded)); err != nil {
		_ = writer.Close()
		return s.wrapError("put json", path, err)
	}
	if err := writer.Close(); err != nil {
		return s.wrapError("put json", path, err)
	}
	return nil
}

// GetJSON loads and unmarshals the object at path.
func (s *GCSStore) GetJSON(ctx context.Context, path string, value any) error {
	reader, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		return s.wrapError("get json", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return s.wrapError("get json", path, err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return services.Wrap(services.ErrValidation, "storage", "get json", fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

// Exists reports whether an object is present at path.
func (s *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.bucket.Object(path).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, s.wrapError("stat", path, err)
}

// List returns the object paths under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var paths []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, s.wrapError("list", prefix, err)
		}
		paths = append(paths, attrs.Name)
	}
	return paths, nil
}

// PublicURL returns the externally reachable URL for an object. A configured
// base URL (CDN or custom domain) takes precedence over the bucket endpoint.
func (s *GCSStore) PublicURL(path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + path
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, path)
}

func (s *GCSStore) wrapError(operation, path string, err error) error {
	message := fmt.Sprintf("%s %s", operation, path)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return services.Wrap(services.ErrNotFound, "storage", operation, message, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return services.Wrap(services.ErrNotFound, "storage", operation, message, err)
		case apiErr.Code == 412:
			return services.Wrap(services.ErrConflict, "storage", operation, message, err)
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return services.Wrap(services.ErrTransient, "storage", operation, message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "storage", operation, message, err)
	}
	return services.Wrap(services.ErrUnavailable, "storage", operation, message, err)
}
