package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signet/internal/document/models"
	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

type ownerTypeKey struct {
	owner    id.UserID
	typeCode models.DocumentType
}

// InMemory keeps documents in process memory. Returned documents are copies.
type InMemory struct {
	mu      sync.RWMutex
	docs    map[id.DocumentID]*models.Document
	texts   map[id.DocumentID]string
	byOwner map[ownerTypeKey][]id.DocumentID
}

func NewInMemory() *InMemory {
	return &InMemory{
		docs:    make(map[id.DocumentID]*models.Document),
		texts:   make(map[id.DocumentID]string),
		byOwner: make(map[ownerTypeKey][]id.DocumentID),
	}
}

func (s *InMemory) Create(_ context.Context, in models.NewDocument) (*models.Document, error) {
	doc := newDocument(in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return nil, fmt.Errorf("document %s already exists: %w", doc.ID, sentinel.ErrConflict)
	}
	s.docs[doc.ID] = doc
	s.texts[doc.ID] = in.Text
	key := ownerTypeKey{owner: doc.OwnerUserID, typeCode: doc.TypeCode}
	s.byOwner[key] = append(s.byOwner[key], doc.ID)
	return doc.Clone(), nil
}

func (s *InMemory) Get(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *InMemory) Text(_ context.Context, docID id.DocumentID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.texts[docID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return text, nil
}

func (s *InMemory) FindByOwnerAndType(_ context.Context, owner id.UserID, typeCode models.DocumentType) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[ownerTypeKey{owner: owner, typeCode: typeCode}]
	out := make([]*models.Document, 0, len(ids))
	for _, docID := range ids {
		out = append(out, s.docs[docID].Clone())
	}
	return out, nil
}

func (s *InMemory) UpdateStatus(_ context.Context, upd models.StatusUpdate) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[upd.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := checkUpdate(doc, upd); err != nil {
		return nil, err
	}
	applyUpdate(doc, upd)
	return doc.Clone(), nil
}

func (s *InMemory) ExpireDue(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, doc := range s.docs {
		if dueForExpiry(doc, now) {
			doc.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}
