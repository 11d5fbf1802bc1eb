// Package storage archives rendered and signed contract PDFs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/types"
)

// ContentTypePDF is the content type of every archived object.
const ContentTypePDF = "application/pdf"

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Archive stores PDF objects by key.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Presigner is implemented by archives that can hand out time-limited download URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

// RenderKey is the object key of the unsigned PDF sent for a stage.
func RenderKey(contractID uuid.UUID, stage types.Stage) string {
	if stage == "" {
		stage = types.StageSingle
	}
	return fmt.Sprintf("contracts/%s/%s.pdf", contractID, stage)
}

// SignedKey is the object key of the fully signed PDF.
func SignedKey(contractID uuid.UUID) string {
	return fmt.Sprintf("contracts/%s/signed.pdf", contractID)
}

// MemoryArchive keeps objects in memory. It backs development servers and tests.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArchive creates an empty MemoryArchive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte)}
}

func (a *MemoryArchive) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.mu.Lock()
	a.objects[key] = buf
	a.mu.Unlock()
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Keys returns the stored keys in no particular order.
func (a *MemoryArchive) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.objects))
	for k := range a.objects {
		keys = append(keys, k)
	}
	return keys
}
