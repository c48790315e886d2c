package otp

import (
	"context"
	"sync"

	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu         sync.Mutex
	challenges map[id.DocumentID]Challenge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{challenges: make(map[id.DocumentID]Challenge)}
}

func (s *InMemoryStore) Put(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.DocumentID] = c
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, docID id.DocumentID) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) Delete(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, docID)
	return nil
}
