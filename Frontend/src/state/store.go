package state

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// LocalStore is the durable client-side key/value store backing guest mode.
// Get reports ok=false when the key is absent.
type LocalStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a LocalStore that lives as long as the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{data: map[string][]byte{}} }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// loadJSON reads a JSON array under key. Absent keys and undecodable values
// both yield an empty collection; only storage I/O errors are returned.
func loadJSON[T any](ctx context.Context, store LocalStore, key string, log zerolog.Logger) ([]T, error) {
	b, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed local state")
		return nil, nil
	}
	return out, nil
}

func saveJSON[T any](ctx context.Context, store LocalStore, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, b)
}
