package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"signet/internal/document/models"
	"signet/internal/platform/blob"
	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

const metaSuffix = ".json"

// FileStore keeps each document as <id>.txt next to an <id>.json metadata
// sidecar. The sidecar is the commit point: text without a sidecar is an
// aborted create and is ignored (and cleaned up) at open.
type FileStore struct {
	root  string
	locks shardedLocks

	mu      sync.RWMutex
	byOwner map[ownerTypeKey][]id.DocumentID
	all     map[id.DocumentID]struct{}
}

// OpenFileStore creates root if needed and rebuilds the owner/type index from
// existing sidecars.
func OpenFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	s := &FileStore{
		root:    root,
		byOwner: make(map[ownerTypeKey][]id.DocumentID),
		all:     make(map[id.DocumentID]struct{}),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) rebuildIndex() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read document dir: %w", err)
	}
	committed := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		docID, err := id.ParseDocumentID(strings.TrimSuffix(name, metaSuffix))
		if err != nil {
			continue
		}
		doc, err := s.readMeta(docID)
		if err != nil {
			return err
		}
		s.index(doc)
		committed[doc.TextRef] = true
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".txt") && !committed[name] {
			_ = os.Remove(filepath.Join(s.root, name))
		}
	}
	return nil
}

func (s *FileStore) index(doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.all[doc.ID]; seen {
		return
	}
	s.all[doc.ID] = struct{}{}
	key := ownerTypeKey{owner: doc.OwnerUserID, typeCode: doc.TypeCode}
	s.byOwner[key] = append(s.byOwner[key], doc.ID)
}

func (s *FileStore) metaPath(docID id.DocumentID) string {
	return filepath.Join(s.root, docID.String()+metaSuffix)
}

func (s *FileStore) readMeta(docID id.DocumentID) (*models.Document, error) {
	raw, err := os.ReadFile(s.metaPath(docID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document metadata: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document metadata %s: %w", docID, err)
	}
	return &doc, nil
}

func (s *FileStore) writeMeta(doc *models.Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document metadata: %w", err)
	}
	return blob.WriteFileAtomic(s.metaPath(doc.ID), raw)
}

// Create writes the text first and the sidecar second. A failed sidecar write
// removes the text so no partial record remains.
func (s *FileStore) Create(ctx context.Context, in models.NewDocument) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := newDocument(in)
	unlock := s.locks.lock(doc.ID)
	defer unlock()

	textPath := filepath.Join(s.root, doc.TextRef)
	if err := blob.WriteFileAtomic(textPath, []byte(in.Text)); err != nil {
		return nil, fmt.Errorf("write document text: %w", err)
	}
	if err := s.writeMeta(doc); err != nil {
		_ = os.Remove(textPath)
		return nil, err
	}
	s.index(doc)
	return doc.Clone(), nil
}

func (s *FileStore) Get(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	return s.readMeta(docID)
}

func (s *FileStore) Text(_ context.Context, docID id.DocumentID) (string, error) {
	doc, err := s.readMeta(docID)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(s.root, doc.TextRef))
	if err != nil {
		return "", fmt.Errorf("read document text: %w", err)
	}
	return string(raw), nil
}

func (s *FileStore) FindByOwnerAndType(ctx context.Context, owner id.UserID, typeCode models.DocumentType) ([]*models.Document, error) {
	s.mu.RLock()
	ids := append([]id.DocumentID(nil), s.byOwner[ownerTypeKey{owner: owner, typeCode: typeCode}]...)
	s.mu.RUnlock()

	out := make([]*models.Document, 0, len(ids))
	for _, docID := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.readMeta(docID)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *FileStore) UpdateStatus(ctx context.Context, upd models.StatusUpdate) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(upd.ID)
	defer unlock()

	doc, err := s.readMeta(upd.ID)
	if err != nil {
		return nil, err
	}
	if err := checkUpdate(doc, upd); err != nil {
		return nil, err
	}
	applyUpdate(doc, upd)
	if err := s.writeMeta(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FileStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	ids := make([]id.DocumentID, 0, len(s.all))
	for docID := range s.all {
		ids = append(ids, docID)
	}
	s.mu.RUnlock()

	n := 0
	for _, docID := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		expired, err := s.expireOne(docID, now)
		if err != nil {
			return n, err
		}
		if expired {
			n++
		}
	}
	return n, nil
}

func (s *FileStore) expireOne(docID id.DocumentID, now time.Time) (bool, error) {
	unlock := s.locks.lock(docID)
	defer unlock()

	doc, err := s.readMeta(docID)
	if err != nil {
		return false, err
	}
	if !dueForExpiry(doc, now) {
		return false, nil
	}
	doc.Status = models.StatusExpired
	if err := s.writeMeta(doc); err != nil {
		return false, err
	}
	return true, nil
}
