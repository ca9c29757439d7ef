package repository

import (
	"context"
	"sync"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
)

type memoryBlob struct {
	value   []byte
	version int64
}

// MemoryBlobRepository is the in-process blob store used by tests and the memory storage mode.
type MemoryBlobRepository struct {
	mu    sync.Mutex
	blobs map[string]memoryBlob
	fail  error
}

func NewMemoryBlobRepository() *MemoryBlobRepository {
	return &MemoryBlobRepository{blobs: make(map[string]memoryBlob)}
}

// FailWith makes every following call return err until called with nil.
func (m *MemoryBlobRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Put overwrites a key regardless of its version.
func (m *MemoryBlobRepository) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.blobs[key]
	m.blobs[key] = memoryBlob{value: append([]byte(nil), value...), version: current.version + 1}
}

func (m *MemoryBlobRepository) Get(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, 0, apperr.NewStoreError("get "+key, m.fail)
	}

	blob, ok := m.blobs[key]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), blob.value...), blob.version, nil
}

func (m *MemoryBlobRepository) CompareAndSwap(_ context.Context, key string, expected int64, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, apperr.NewStoreError("write "+key, m.fail)
	}

	if m.blobs[key].version != expected {
		return false, nil
	}
	m.blobs[key] = memoryBlob{value: append([]byte(nil), value...), version: expected + 1}
	return true, nil
}

func (m *MemoryBlobRepository) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return apperr.NewStoreError("delete "+key, m.fail)
	}
	delete(m.blobs, key)
	return nil
}
