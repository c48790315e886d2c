// Package store persists document instances and their generated text.
//
// Every implementation honours the same contract:
//   - Create writes text and metadata together or not at all.
//   - UpdateStatus is a compare-and-set on the current status. A mismatched
//     From, an illegal transition or evidence whose hash differs from the
//     stored canonical hash returns sentinel.ErrConflict and changes nothing.
//   - Missing documents return sentinel.ErrNotFound.
//
// Other errors are I/O failures; services report them as storage errors.
package store

import (
	"context"
	"fmt"
	"time"

	"signet/internal/document/models"
	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, doc models.NewDocument) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Text(ctx context.Context, docID id.DocumentID) (string, error)
	FindByOwnerAndType(ctx context.Context, owner id.UserID, typeCode models.DocumentType) ([]*models.Document, error)
	UpdateStatus(ctx context.Context, upd models.StatusUpdate) (*models.Document, error)
	// ExpireDue moves pending documents whose ExpiresAt is at or before now to
	// EXPIRED and returns how many moved.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

func newDocument(in models.NewDocument) *models.Document {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	vars := make(map[string]string, len(in.Variables))
	for k, v := range in.Variables {
		vars[k] = v
	}
	doc := &models.Document{
		ID:              id.NewDocumentID(),
		TypeCode:        in.TypeCode,
		OwnerUserID:     in.OwnerUserID,
		Variables:       vars,
		CanonicalHash:   in.CanonicalHash,
		Status:          models.StatusDrafted,
		CreatedAt:       createdAt.UTC(),
		TemplateVersion: in.TemplateVersion,
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		doc.ExpiresAt = &exp
	}
	doc.TextRef = textKey(doc.ID)
	return doc
}

func textKey(docID id.DocumentID) string {
	return docID.String() + ".txt"
}

// checkUpdate validates upd against the current state of doc.
func checkUpdate(doc *models.Document, upd models.StatusUpdate) error {
	if doc.Status != upd.From {
		return fmt.Errorf("document is %s, not %s: %w", doc.Status, upd.From, sentinel.ErrConflict)
	}
	if !models.CanTransition(upd.From, upd.To) {
		return fmt.Errorf("illegal transition %s -> %s: %w", upd.From, upd.To, sentinel.ErrConflict)
	}
	if upd.To == models.StatusSigned {
		if upd.Evidence == nil {
			return fmt.Errorf("signing requires evidence: %w", sentinel.ErrConflict)
		}
		if upd.Evidence.DocumentHashAtSigning != doc.CanonicalHash {
			return fmt.Errorf("evidence hash does not match canonical hash: %w", sentinel.ErrConflict)
		}
	}
	return nil
}

// applyUpdate mutates doc after checkUpdate has passed.
func applyUpdate(doc *models.Document, upd models.StatusUpdate) {
	doc.Status = upd.To
	if upd.To == models.StatusSigned {
		at := upd.At
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		doc.SignedAt = &at
		ev := *upd.Evidence
		doc.Evidence = &ev
	}
}

func dueForExpiry(doc *models.Document, now time.Time) bool {
	return doc.Status.Pending() && doc.ExpiredAt(now)
}
