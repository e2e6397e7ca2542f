package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Put(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey(record.CredentialID)
	if _, ok := s.records[k]; ok {
		return ErrDuplicate
	}
	s.records[k] = record.clone()

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, credentialID []byte) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[storeKey(credentialID)]
	if !ok {
		return nil, ErrNotFound
	}

	return record.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, rpID string, userID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0)
	for _, record := range s.records {
		if record.RPID == rpID && record.UserID == userID {
			records = append(records, record.clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (s *MemoryStore) ListRP(ctx context.Context, rpID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0)
	for _, record := range s.records {
		if record.RPID == rpID {
			records = append(records, record.clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (s *MemoryStore) Bump(ctx context.Context, credentialID []byte, signCount uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[storeKey(credentialID)]
	if !ok {
		return ErrNotFound
	}
	if signCount <= record.SignCount {
		return ErrCounterRegression
	}
	record.SignCount = signCount

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, credentialID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey(credentialID)
	if _, ok := s.records[k]; !ok {
		return ErrNotFound
	}
	delete(s.records, k)

	return nil
}
