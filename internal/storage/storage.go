// Package storage abstracts the object store that holds published episode
// artifacts. The pipeline writes audio and catalog records through it and
// the read side lists and loads catalog records from it.
package storage

import "context"

// Object content types written by the pipeline.
const (
	ContentTypeJSON = "application/json"
	ContentTypeMP3  = "audio/mpeg"
)

// ObjectStore is the durable artifact store for episodes.
type ObjectStore interface {
	// PutBlob writes raw bytes to an object path, overwriting any
	// existing object.
	PutBlob(ctx context.Context, path string, data []byte, contentType string) error

	// PutJSON marshals value and writes it to an object path. Catalog
	// records use create-only semantics so a concurrent duplicate run
	// cannot clobber a published episode; see PutJSONIfAbsent.
	PutJSON(ctx context.Context, path string, value any) error

	// PutJSONIfAbsent writes the record only when no object exists at
	// path. A losing writer gets a conflict error.
	PutJSONIfAbsent(ctx context.Context, path string, value any) error

	// GetJSON loads and unmarshals the object at path. Missing objects
	// report not-found; backend outages report unavailability.
	GetJSON(ctx context.Context, path string, value any) error

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the object paths under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// PublicURL returns the externally reachable URL for an object.
	PublicURL(path string) string
}
