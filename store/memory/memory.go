// Package memory provides an in-memory ObjectStore for tests and local runs.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

type object struct {
	body         []byte
	meta         store.Metadata
	lastModified time.Time
}

// Store is a thread-safe map-backed ObjectStore. LastModified comes from the
// injected clock so tests can control it.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	clk     clock.Clock
}

func New(clk clock.Clock) *Store {
	return &Store{objects: make(map[string]object), clk: clk}
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []store.ObjectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, store.ObjectInfo{Key: key, LastModified: obj.lastModified})
		}
	}
	return infos, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return body, obj.meta, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, meta store.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[key] = object{body: stored, meta: meta, lastModified: s.clk.Now().UTC()}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// PutAt stores an object with an explicit lastModified. Test helper for
// exercising time-window selection.
func (s *Store) PutAt(key string, body []byte, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[key] = object{body: stored, lastModified: lastModified.UTC()}
}
