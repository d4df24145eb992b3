package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by a BlobStore when the key does not exist.
var ErrNotFound = errors.New("not found")

// BlobStore is the key-addressed remote storage the registry is built on.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body io.Reader) error
	// List returns the keys in bucket starting with prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// MemoryBlobStore is an in-process BlobStore for development and tests.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string]map[string][]byte{}}
}

func (m *MemoryBlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryBlobStore) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string][]byte{}
	}
	m.objects[bucket][key] = buf.Bytes()
	return nil
}

func (m *MemoryBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
