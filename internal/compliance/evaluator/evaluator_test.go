package evaluator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"signet/internal/compliance/catalog"
	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	"signet/internal/document/store"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/requestcontext"
)

var contributorDocs = []docmodels.DocumentType{
	"CODE_OF_CONDUCT", "CONTRIBUTOR_AGREEMENT", "IP_ASSIGNMENT", "NDA", "PRIVACY_POLICY", "TERMS_OF_SERVICE",
}

type failingFinder struct{ err error }

func (f failingFinder) FindByOwnerAndType(context.Context, id.UserID, docmodels.DocumentType) ([]*docmodels.Document, error) {
	return nil, f.err
}

type slowFinder struct{}

func (slowFinder) FindByOwnerAndType(ctx context.Context, _ id.UserID, _ docmodels.DocumentType) ([]*docmodels.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingFinder struct {
	DocumentFinder
	calls atomic.Int32
}

func (c *countingFinder) FindByOwnerAndType(ctx context.Context, owner id.UserID, t docmodels.DocumentType) ([]*docmodels.Document, error) {
	c.calls.Add(1)
	return c.DocumentFinder.FindByOwnerAndType(ctx, owner, t)
}

// pausingFinder holds every lookup made while paused, after it has read the
// store, until release is closed.
type pausingFinder struct {
	DocumentFinder
	paused  atomic.Bool
	arrived chan struct{}
	release chan struct{}
}

func (p *pausingFinder) FindByOwnerAndType(ctx context.Context, owner id.UserID, t docmodels.DocumentType) ([]*docmodels.Document, error) {
	docs, err := p.DocumentFinder.FindByOwnerAndType(ctx, owner, t)
	if p.paused.Load() {
		p.arrived <- struct{}{}
		<-p.release
	}
	return docs, err
}

type EvaluatorSuite struct {
	suite.Suite
	store   *store.InMemory
	catalog *catalog.Catalog
	user    id.UserID
	now     time.Time
	ctx     context.Context
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) SetupTest() {
	c, err := catalog.Default()
	s.Require().NoError(err)
	s.catalog = c
	s.store = store.NewInMemory()
	s.user = id.UserID(uuid.New())
	s.now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *EvaluatorSuite) draft(owner id.UserID, typeCode docmodels.DocumentType, expiresAt *time.Time) *docmodels.Document {
	doc, err := s.store.Create(s.ctx, docmodels.NewDocument{
		TypeCode:      typeCode,
		OwnerUserID:   owner,
		Text:          "text of " + string(typeCode),
		CanonicalHash: "hash-" + string(typeCode),
		ExpiresAt:     expiresAt,
		CreatedAt:     s.now.Add(-48 * time.Hour),
	})
	s.Require().NoError(err)
	return doc
}

func (s *EvaluatorSuite) sign(owner id.UserID, typeCode docmodels.DocumentType, expiresAt *time.Time) {
	doc := s.draft(owner, typeCode, expiresAt)
	_, err := s.store.UpdateStatus(s.ctx, docmodels.StatusUpdate{
		ID:   doc.ID,
		From: docmodels.StatusDrafted,
		To:   docmodels.StatusSigned,
		At:   s.now.Add(-time.Hour),
		Evidence: &docmodels.SignatureEvidence{
			SignerName:            "Test Signer",
			SignerEmail:           "signer@example.com",
			DocumentHashAtSigning: doc.CanonicalHash,
		},
	})
	s.Require().NoError(err)
}

func (s *EvaluatorSuite) evaluator(opts ...Option) *Evaluator {
	return New(s.store, s.catalog, opts...)
}

func (s *EvaluatorSuite) TestScenarioA_NoDocuments() {
	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.RBACLevel("CONTRIBUTOR"))
	s.Require().NoError(err)

	s.False(res.Compliant)
	s.Len(res.MissingDocumentTypes, 6)
	s.Equal(contributorDocs, res.MissingDocumentTypes)
	s.Equal(contributorDocs, res.RequiredDocumentTypes)
	s.NotNil(res.CompliantDocumentTypes)
	s.Empty(res.CompliantDocumentTypes)
}

func (s *EvaluatorSuite) TestScenarioB_AllSigned() {
	for _, t := range contributorDocs {
		s.sign(s.user, t, nil)
	}

	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.RBACLevel("CONTRIBUTOR"))
	s.Require().NoError(err)

	s.True(res.Compliant)
	s.NotNil(res.MissingDocumentTypes)
	s.Empty(res.MissingDocumentTypes)
	s.Equal(contributorDocs, res.CompliantDocumentTypes)
}

func (s *EvaluatorSuite) TestScenarioC_TierOneIsNotTierThree() {
	tier1, ok := s.catalog.SecurityTier("TIER_1")
	s.Require().True(ok)
	for _, t := range tier1.RequiredDocumentTypes {
		s.sign(s.user, t, nil)
	}
	e := s.evaluator()

	res1, err := e.Evaluate(s.ctx, s.user, models.SecurityTier("TIER_1"))
	s.Require().NoError(err)
	s.True(res1.Compliant)

	res3, err := e.Evaluate(s.ctx, s.user, models.SecurityTier("TIER_3"))
	s.Require().NoError(err)
	s.False(res3.Compliant)
	s.Contains(res3.MissingDocumentTypes, docmodels.DocumentType("CROWN_JEWEL_IP_AGREEMENT"))
	s.NotContains(res3.MissingDocumentTypes, docmodels.DocumentType("NDA"))
}

func (s *EvaluatorSuite) TestUnsignedAndOtherUsersDocumentsDoNotCount() {
	s.draft(s.user, "TERMS_OF_SERVICE", nil)
	s.sign(id.UserID(uuid.New()), "PRIVACY_POLICY", nil)

	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.Action("MANAGE_SUBSCRIPTION"))
	s.Require().NoError(err)
	s.False(res.Compliant)
	s.Equal([]docmodels.DocumentType{"PRIVACY_POLICY", "TERMS_OF_SERVICE"}, res.MissingDocumentTypes)
}

func (s *EvaluatorSuite) TestExpiredSignatureIsExcluded() {
	past := s.now.Add(-time.Minute)
	s.sign(s.user, "NDA", &past)
	s.sign(s.user, "CONFIDENTIALITY_ACK", nil)

	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.Action("ACCESS_FINANCIALS"))
	s.Require().NoError(err)
	s.False(res.Compliant)
	s.Equal([]docmodels.DocumentType{"NDA"}, res.MissingDocumentTypes)
	s.Equal([]docmodels.DocumentType{"CONFIDENTIALITY_ACK"}, res.CompliantDocumentTypes)
}

func (s *EvaluatorSuite) TestExpiryBoundaryIsExclusive() {
	s.sign(s.user, "NDA", &s.now)
	s.sign(s.user, "CONFIDENTIALITY_ACK", nil)

	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.Action("ACCESS_FINANCIALS"))
	s.Require().NoError(err)
	s.False(res.Compliant)
}

func (s *EvaluatorSuite) TestAnyMatchAcrossInstances() {
	past := s.now.Add(-24 * time.Hour)
	future := s.now.Add(24 * time.Hour)
	s.sign(s.user, "NDA", &past)
	s.draft(s.user, "NDA", nil)
	s.sign(s.user, "NDA", &future)
	s.sign(s.user, "ACCEPTABLE_USE", nil)

	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.SecurityTier("TIER_1"))
	s.Require().NoError(err)
	s.True(res.Compliant)
}

func (s *EvaluatorSuite) TestUnknownTargetIsVacuouslyCompliant() {
	res, err := s.evaluator().Evaluate(s.ctx, s.user, models.Action("LAUNCH_ROCKET"))
	s.Require().NoError(err)
	s.True(res.Compliant)
	s.NotNil(res.RequiredDocumentTypes)
	s.Empty(res.RequiredDocumentTypes)
}

func (s *EvaluatorSuite) TestInvalidInput() {
	_, err := s.evaluator().Evaluate(s.ctx, id.UserID{}, models.Action("CREATE_VENTURE"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.evaluator().Evaluate(s.ctx, s.user, models.Target{Kind: "role", Code: "ADMIN"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *EvaluatorSuite) TestStoreFailuresAreStorageErrors() {
	e := New(failingFinder{err: errors.New("connection reset")}, s.catalog)
	_, err := e.Evaluate(s.ctx, s.user, models.RBACLevel("MEMBER"))
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	slow := New(slowFinder{}, s.catalog, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err = slow.Evaluate(s.ctx, s.user, models.RBACLevel("MEMBER"))
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Less(time.Since(start), time.Second)
}

func (s *EvaluatorSuite) TestCacheHitAndInvalidate() {
	cache, err := NewMemoryCache(16)
	s.Require().NoError(err)
	finder := &countingFinder{DocumentFinder: s.store}
	e := New(finder, s.catalog, WithCache(cache, time.Minute))
	target := models.RBACLevel("MEMBER")

	first, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.False(first.Compliant)
	calls := finder.calls.Load()
	s.Equal(int32(3), calls)

	_, err = e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.Equal(calls, finder.calls.Load(), "second evaluation is served from cache")

	for _, t := range []docmodels.DocumentType{"TERMS_OF_SERVICE", "PRIVACY_POLICY", "CODE_OF_CONDUCT"} {
		s.sign(s.user, t, nil)
	}
	e.Invalidate(s.ctx, s.user)

	after, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.True(after.Compliant)
	s.Equal(calls*2, finder.calls.Load())
}

func (s *EvaluatorSuite) TestInFlightVerdictDoesNotSurviveInvalidation() {
	cache, err := NewMemoryCache(16)
	s.Require().NoError(err)
	s.sign(s.user, "CONFIDENTIALITY_ACK", nil)
	finder := &pausingFinder{
		DocumentFinder: s.store,
		arrived:        make(chan struct{}, 2),
		release:        make(chan struct{}),
	}
	e := New(finder, s.catalog, WithCache(cache, time.Minute))
	target := models.Action("ACCESS_FINANCIALS")

	finder.paused.Store(true)
	done := make(chan *models.Result, 1)
	go func() {
		res, err := e.Evaluate(s.ctx, s.user, target)
		s.NoError(err)
		done <- res
	}()
	<-finder.arrived
	<-finder.arrived
	finder.paused.Store(false)

	// The NDA is signed while the first evaluation still holds its snapshot.
	s.sign(s.user, "NDA", nil)
	e.Invalidate(s.ctx, s.user)
	close(finder.release)

	stale := <-done
	s.Require().NotNil(stale)
	s.Equal([]docmodels.DocumentType{"NDA"}, stale.MissingDocumentTypes)
	_, cached := cache.Get(s.ctx, s.user, target)
	s.False(cached, "a verdict read before the signature must not be cached after it")

	fresh, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.True(fresh.Compliant)
	s.Empty(fresh.MissingDocumentTypes)
}

func (s *EvaluatorSuite) TestCachingIsOffByDefault() {
	finder := &countingFinder{DocumentFinder: s.store}
	e := New(finder, s.catalog)
	target := models.RBACLevel("MEMBER")

	for range 2 {
		_, err := e.Evaluate(s.ctx, s.user, target)
		s.Require().NoError(err)
	}
	s.Equal(int32(6), finder.calls.Load())

	cache, err := NewMemoryCache(16)
	s.Require().NoError(err)
	e = New(finder, s.catalog, WithCache(cache, 0))
	_, err = e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	_, ok := cache.Get(s.ctx, s.user, target)
	s.False(ok, "a zero ttl leaves caching off")
}

func (s *EvaluatorSuite) TestCacheEntryNeverOutlivesDocumentExpiry() {
	cache, err := NewMemoryCache(16)
	s.Require().NoError(err)
	clock := s.now
	cache.now = func() time.Time { return clock }

	soon := s.now.Add(5 * time.Second)
	s.sign(s.user, "NDA", &soon)
	s.sign(s.user, "CONFIDENTIALITY_ACK", nil)
	e := s.evaluator(WithCache(cache, time.Minute))
	target := models.Action("ACCESS_FINANCIALS")

	res, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.True(res.Compliant)

	clock = s.now.Add(10 * time.Second)
	_, ok := cache.Get(s.ctx, s.user, target)
	s.False(ok, "entry must expire with the NDA")

	later := requestcontext.WithTime(context.Background(), clock)
	res, err = e.Evaluate(later, s.user, target)
	s.Require().NoError(err)
	s.False(res.Compliant)
}

func (s *EvaluatorSuite) TestCachedResultsAreCopies() {
	cache, err := NewMemoryCache(16)
	s.Require().NoError(err)
	e := s.evaluator(WithCache(cache, time.Minute))
	target := models.RBACLevel("MEMBER")

	first, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	first.MissingDocumentTypes[0] = "TAMPERED"

	second, err := e.Evaluate(s.ctx, s.user, target)
	s.Require().NoError(err)
	s.NotContains(second.MissingDocumentTypes, docmodels.DocumentType("TAMPERED"))
}

// TestComplianceMatchesDefinition checks, over random document sets, that a
// target is compliant exactly when every required type has a signed and
// unexpired instance.
func (s *EvaluatorSuite) TestComplianceMatchesDefinition() {
	rng := rand.New(rand.NewPCG(7, 11))
	types := []docmodels.DocumentType{"NDA", "ACCEPTABLE_USE", "CONFIDENTIALITY_ACK", "SECURITY_POLICY_ACK", "CROWN_JEWEL_IP_AGREEMENT"}
	targets := []models.Target{
		models.SecurityTier("TIER_1"), models.SecurityTier("TIER_2"), models.SecurityTier("TIER_3"),
	}
	e := s.evaluator()

	for round := 0; round < 40; round++ {
		user := id.UserID(uuid.New())
		valid := map[docmodels.DocumentType]bool{}
		for _, t := range types {
			switch rng.IntN(4) {
			case 0:
			case 1:
				s.draft(user, t, nil)
			case 2:
				past := s.now.Add(-time.Hour)
				s.sign(user, t, &past)
			case 3:
				future := s.now.Add(time.Hour)
				s.sign(user, t, &future)
				valid[t] = true
			}
		}
		for _, target := range targets {
			res, err := e.Evaluate(s.ctx, user, target)
			s.Require().NoError(err)
			want := true
			for _, t := range s.catalog.RequiredDocuments(target) {
				want = want && valid[t]
			}
			s.Equal(want, res.Compliant, "round %d %s", round, target)
			s.Equal(len(res.RequiredDocumentTypes), len(res.CompliantDocumentTypes)+len(res.MissingDocumentTypes))
		}
	}
}
