package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process object store used for local runs and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    map[string]int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}, gets: map[string]int{}}
}

func memoryKey(bucket, key string) string { return bucket + "/" + key }

// Get returns a copy of the stored object or ErrNotFound.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(bucket, key)
	m.gets[k]++
	data, ok := m.objects[k]
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memoryKey(bucket, key)] = append([]byte(nil), data...)
	return nil
}

// Keys lists stored "bucket/key" names in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Gets reports how many times bucket/key was read.
func (m *Memory) Gets(bucket, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets[memoryKey(bucket, key)]
}
