package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"signet/internal/document/models"
	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

// ContractSuite asserts the Store contract. Each backend embeds it and sets
// newStore.
type ContractSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
	owner    id.UserID
	now      time.Time
}

func (s *ContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.owner = id.UserID(uuid.New())
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ContractSuite) create(typeCode models.DocumentType, expiresAt *time.Time) *models.Document {
	doc, err := s.store.Create(s.ctx, models.NewDocument{
		TypeCode:        typeCode,
		OwnerUserID:     s.owner,
		Variables:       map[string]string{"name": "Ada"},
		Text:            "body of " + string(typeCode),
		CanonicalHash:   "hash-" + string(typeCode),
		ExpiresAt:       expiresAt,
		TemplateVersion: "1",
		CreatedAt:       s.now,
	})
	s.Require().NoError(err)
	return doc
}

func (s *ContractSuite) evidence(hash string) *models.SignatureEvidence {
	return &models.SignatureEvidence{
		SignerName:            "Ada Lovelace",
		SignerEmail:           "ada@example.com",
		IP:                    "203.0.113.7",
		UserAgent:             "test",
		Timestamp:             s.now,
		DocumentHashAtSigning: hash,
	}
}

func (s *ContractSuite) sign(doc *models.Document) (*models.Document, error) {
	return s.store.UpdateStatus(s.ctx, models.StatusUpdate{
		ID:       doc.ID,
		From:     models.StatusDrafted,
		To:       models.StatusSigned,
		Evidence: s.evidence(doc.CanonicalHash),
		At:       s.now,
	})
}

func (s *ContractSuite) TestCreateAndGet() {
	doc := s.create("NDA", nil)
	s.False(doc.ID.IsNil())
	s.Equal(models.StatusDrafted, doc.Status)
	s.Equal(s.now, doc.CreatedAt)
	s.NotEmpty(doc.TextRef)

	got, err := s.store.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)
	s.Equal(doc.CanonicalHash, got.CanonicalHash)
	s.Equal("Ada", got.Variables["name"])
	s.Equal("1", got.TemplateVersion)

	text, err := s.store.Text(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal("body of NDA", text)
}

func (s *ContractSuite) TestCreateAssignsFreshIDs() {
	a := s.create("NDA", nil)
	b := s.create("NDA", nil)
	s.NotEqual(a.ID, b.ID)
}

func (s *ContractSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, id.NewDocumentID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Text(s.ctx, id.NewDocumentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContractSuite) TestFindByOwnerAndTypeReturnsEveryStatus() {
	signed := s.create("NDA", nil)
	_, err := s.sign(signed)
	s.Require().NoError(err)
	s.create("NDA", nil)
	s.create("IP_ASSIGNMENT", nil)

	docs, err := s.store.FindByOwnerAndType(s.ctx, s.owner, "NDA")
	s.Require().NoError(err)
	s.Len(docs, 2)

	statuses := map[models.Status]int{}
	for _, d := range docs {
		statuses[d.Status]++
	}
	s.Equal(1, statuses[models.StatusSigned])
	s.Equal(1, statuses[models.StatusDrafted])

	other, err := s.store.FindByOwnerAndType(s.ctx, id.UserID(uuid.New()), "NDA")
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *ContractSuite) TestSignOnce() {
	doc := s.create("NDA", nil)
	signed, err := s.sign(doc)
	s.Require().NoError(err)
	s.Equal(models.StatusSigned, signed.Status)
	s.Require().NotNil(signed.SignedAt)
	s.Equal(s.now, *signed.SignedAt)
	s.Equal(doc.CanonicalHash, signed.Evidence.DocumentHashAtSigning)

	_, err = s.store.UpdateStatus(s.ctx, models.StatusUpdate{
		ID:       doc.ID,
		From:     models.StatusSigned,
		To:       models.StatusSigned,
		Evidence: &models.SignatureEvidence{SignerName: "Mallory", DocumentHashAtSigning: doc.CanonicalHash},
		At:       s.now.Add(time.Hour),
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.sign(doc)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(s.now, *got.SignedAt)
	s.Equal("Ada Lovelace", got.Evidence.SignerName)
}

func (s *ContractSuite) TestSignedIsTerminal() {
	doc := s.create("NDA", nil)
	_, err := s.sign(doc)
	s.Require().NoError(err)

	_, err = s.store.UpdateStatus(s.ctx, models.StatusUpdate{ID: doc.ID, From: models.StatusSigned, To: models.StatusExpired})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *ContractSuite) TestEvidenceHashMismatchLeavesStatus() {
	doc := s.create("NDA", nil)
	_, err := s.store.UpdateStatus(s.ctx, models.StatusUpdate{
		ID:       doc.ID,
		From:     models.StatusDrafted,
		To:       models.StatusSigned,
		Evidence: s.evidence("tampered"),
		At:       s.now,
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDrafted, got.Status)
	s.Nil(got.SignedAt)
	s.Nil(got.Evidence)
}

func (s *ContractSuite) TestStaleFromIsConflict() {
	doc := s.create("NDA", nil)
	_, err := s.store.UpdateStatus(s.ctx, models.StatusUpdate{ID: doc.ID, From: models.StatusDrafted, To: models.StatusSigning})
	s.Require().NoError(err)

	_, err = s.sign(doc)
	s.ErrorIs(err, sentinel.ErrConflict)

	signed, err := s.store.UpdateStatus(s.ctx, models.StatusUpdate{
		ID:       doc.ID,
		From:     models.StatusSigning,
		To:       models.StatusSigned,
		Evidence: s.evidence(doc.CanonicalHash),
		At:       s.now,
	})
	s.Require().NoError(err)
	s.Equal(models.StatusSigned, signed.Status)
}

func (s *ContractSuite) TestUpdateMissing() {
	_, err := s.store.UpdateStatus(s.ctx, models.StatusUpdate{
		ID:       id.NewDocumentID(),
		From:     models.StatusDrafted,
		To:       models.StatusSigned,
		Evidence: s.evidence("x"),
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContractSuite) TestConcurrentSignersExactlyOneWins() {
	doc := s.create("NDA", nil)
	const signers = 50

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	start := make(chan struct{})
	for range signers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.sign(doc)
			switch {
			case err == nil:
				wins.Add(1)
			case errorsIsConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(signers-1), conflicts.Load())
}

func (s *ContractSuite) TestExpireDue() {
	past := s.now.Add(-time.Hour)
	future := s.now.Add(time.Hour)

	stale := s.create("NDA", &past)
	fresh := s.create("NDA", &future)
	forever := s.create("NDA", nil)
	signedStale := s.create("IP_ASSIGNMENT", &past)
	_, err := s.sign(signedStale)
	s.Require().NoError(err)

	n, err := s.store.ExpireDue(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	s.assertStatus(stale.ID, models.StatusExpired)
	s.assertStatus(fresh.ID, models.StatusDrafted)
	s.assertStatus(forever.ID, models.StatusDrafted)
	s.assertStatus(signedStale.ID, models.StatusSigned)

	n, err = s.store.ExpireDue(s.ctx, s.now)
	s.Require().NoError(err)
	s.Zero(n, "sweep is idempotent")
}

func (s *ContractSuite) assertStatus(docID id.DocumentID, want models.Status) {
	got, err := s.store.Get(s.ctx, docID)
	s.Require().NoError(err)
	s.Equal(want, got.Status)
}
