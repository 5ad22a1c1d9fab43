package artifactstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemStore keeps artifacts in memory. Used by tests and dry runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func (m *MemStore) Upload(_ context.Context, key string, body io.Reader) error {
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf
	return nil
}

func (m *MemStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (m *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := []string{}
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Has reports whether an object exists at the key.
func (m *MemStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}
