package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	fundrequestapp "github.com/erp/fundflow/internal/application/fundrequest"
)

// Ensure MemoryProofStorage implements ProofStorage
var _ fundrequestapp.ProofStorage = (*MemoryProofStorage)(nil)

// MemoryProofStorage keeps proofs in memory. It backs local runs and tests
// when no bucket is configured; download URLs point at BaseURL.
type MemoryProofStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]storedObject
}

type storedObject struct {
	contentType string
	data        []byte
}

// NewMemoryProofStorage creates an empty in-memory storage
func NewMemoryProofStorage() *MemoryProofStorage {
	return &MemoryProofStorage{
		BaseURL: "http://localhost:8080/files",
		objects: make(map[string]storedObject),
	}
}

// Upload implements ProofStorage
func (s *MemoryProofStorage) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{contentType: contentType, data: buf.Bytes()}
	return nil
}

// DownloadURL implements ProofStorage
func (s *MemoryProofStorage) DownloadURL(_ context.Context, key string) (string, time.Time, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", time.Time{}, fmt.Errorf("object %q not found", key)
	}
	expires := time.Now().Add(15 * time.Minute)
	return s.BaseURL + "/" + url.PathEscape(key) + "?expires=" + expires.Format(time.RFC3339), expires, nil
}

// Delete implements ProofStorage
func (s *MemoryProofStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Object returns the stored bytes of key
func (s *MemoryProofStorage) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	return o.data, ok
}
