// Package memory is an in-process profile gateway. Records are stored as
// encoded JSON so reads never alias the caller's values.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

type Store struct {
	mu          sync.RWMutex
	initialized bool
	cfg         storage.Config
	records     map[string][]byte
}

func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

func (s *Store) Init(_ context.Context, cfg storage.Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return &storage.Error{Op: "init", Err: err}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) Get(ctx context.Context, id string) (*profile.KidProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, &storage.Error{Op: "get", ID: id, Err: storage.ErrNotInitialized}
	}
	data, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	var p profile.KidProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}
	return &p, nil
}

func (s *Store) Put(ctx context.Context, p *profile.KidProfile) storage.SaveResult {
	if err := ctx.Err(); err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}
	data, err := json.Marshal(p)
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: storage.ErrNotInitialized})
	}
	s.records[p.ID] = data
	return storage.Saved()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return &storage.Error{Op: "delete", ID: id, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &storage.Error{Op: "delete", ID: id, Err: storage.ErrNotInitialized}
	}
	delete(s.records, id)
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]*profile.KidProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, &storage.Error{Op: "list", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, &storage.Error{Op: "list", Err: storage.ErrNotInitialized}
	}
	out := make([]*profile.KidProfile, 0, len(s.records))
	for id, data := range s.records {
		var p profile.KidProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &storage.Error{Op: "list", ID: id, Err: err}
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return nil
}
