package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

func newMemoryStore(prefix string) Store {
	return &memoryStore{
		prefix:  prefix,
		objects: make(map[string]memoryObject),
	}
}

func (m *memoryStore) Put(_ context.Context, key string, payload []byte, opts PutOptions) error {
	logicalKey, err := normalizeKey(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.objects[joinPrefix(m.prefix, logicalKey)] = memoryObject{
		data:        append([]byte(nil), payload...),
		contentType: strings.TrimSpace(opts.ContentType),
		metadata:    cloneMetadata(opts.Metadata),
		updatedAt:   time.Now().UTC(),
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (Object, error) {
	logicalKey, err := normalizeKey(key)
	if err != nil {
		return Object{}, err
	}

	m.mu.RLock()
	obj, ok := m.objects[joinPrefix(m.prefix, logicalKey)]
	m.mu.RUnlock()
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, logicalKey)
	}
	return Object{
		Key:          logicalKey,
		Data:         append([]byte(nil), obj.data...),
		ContentType:  obj.contentType,
		Metadata:     cloneMetadata(obj.metadata),
		LastModified: obj.updatedAt,
	}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	logicalKey, err := normalizeKey(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.objects, joinPrefix(m.prefix, logicalKey))
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	logicalKey, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.objects[joinPrefix(m.prefix, logicalKey)]
	m.mu.RUnlock()
	return ok, nil
}
