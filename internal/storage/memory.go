package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"papercast/internal/services"
)

// MemoryStore is an in-process ObjectStore used by tests and by local dry
// runs where no bucket is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string

	// Err, when set, is returned by every operation to simulate an
	// unreachable backend.
	Err error
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	// Episode completion validates the audio URL scheme, so the fake must
	// issue http(s) URLs like the real backend.
	return &MemoryStore{objects: map[string]memoryObject{}, baseURL: "https://storage.test/bucket"}
}

func (s *MemoryStore) PutBlob(_ context.Context, path string, data []byte, contentType string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[path] = memoryObject{data: copied, contentType: contentType}
	return nil
}

func (s *MemoryStore) PutJSON(ctx context.Context, path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "put json", fmt.Sprintf("marshal %s", path), err)
	}
	return s.PutBlob(ctx, path, encoded, ContentTypeJSON)
}

func (s *MemoryStore) PutJSONIfAbsent(_ context.Context, path string, value any) error {
	if s.Err != nil {
		return s.Err
	}
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "put json", fmt.Sprintf("marshal %s", path), err)
	}
	// Check and write under one lock so concurrent callers cannot both win,
	// matching the backend's create-only precondition.
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[path]; exists {
		return services.Wrap(services.ErrConflict, "storage", "put json", fmt.Sprintf("object %s already exists", path), nil)
	}
	s.objects[path] = memoryObject{data: encoded, contentType: ContentTypeJSON}
	return nil
}

func (s *MemoryStore) GetJSON(_ context.Context, path string, value any) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.RLock()
	object, exists := s.objects[path]
	s.mu.RUnlock()
	if !exists {
		return services.Wrap(services.ErrNotFound, "storage", "get json", fmt.Sprintf("object %s not found", path), nil)
	}
	if err := json.Unmarshal(object.data, value); err != nil {
		return services.Wrap(services.ErrValidation, "storage", "get json", fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.objects[path]
	return exists, nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for path := range s.objects {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemoryStore) PublicURL(path string) string {
	return s.baseURL + "/" + path
}

// RawObject returns the stored bytes and content type for assertions.
func (s *MemoryStore) RawObject(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	object, exists := s.objects[path]
	return object.data, object.contentType, exists
}

// Delete removes an object; tests use it to simulate partial publishes.
func (s *MemoryStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
}
