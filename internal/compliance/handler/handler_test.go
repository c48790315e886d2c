package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"signet/internal/compliance/catalog"
	"signet/internal/compliance/handler/mocks"
	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Evaluator,Permissions

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type ComplianceHandlerSuite struct {
	suite.Suite
	evaluator   *mocks.MockEvaluator
	permissions *mocks.MockPermissions
	auditor     *recordingAuditor
	router      chi.Router
	caller      id.UserID
}

func TestComplianceHandlerSuite(t *testing.T) {
	suite.Run(t, new(ComplianceHandlerSuite))
}

func (s *ComplianceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.evaluator = mocks.NewMockEvaluator(ctrl)
	s.permissions = mocks.NewMockPermissions(ctrl)
	s.auditor = &recordingAuditor{}
	s.caller = id.UserID(uuid.New())

	cat, err := catalog.Default()
	s.Require().NoError(err)

	h := New(s.evaluator, cat, s.permissions, s.auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *ComplianceHandlerSuite) check(body any) *http.Request {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/check", body)
	return testutil.WithUserID(req, s.caller.String())
}

func (s *ComplianceHandlerSuite) TestCheckSelf() {
	target := models.RBACLevel("MEMBER")
	s.evaluator.EXPECT().Evaluate(gomock.Any(), s.caller, target).Return(&models.Result{
		Target:                 target,
		Compliant:              false,
		RequiredDocumentTypes:  []docmodels.DocumentType{"PRIVACY_POLICY", "TERMS_OF_SERVICE"},
		CompliantDocumentTypes: []docmodels.DocumentType{"TERMS_OF_SERVICE"},
		MissingDocumentTypes:   []docmodels.DocumentType{"PRIVACY_POLICY"},
	}, nil)

	rr := testutil.DoRequest(s.router, s.check(map[string]any{
		"target": map[string]string{"kind": "rbacLevel", "code": "member"},
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[models.Result](s.T(), rr)
	s.False(resp.Compliant)
	s.Equal([]docmodels.DocumentType{"PRIVACY_POLICY"}, resp.MissingDocumentTypes)
	s.Equal([]docmodels.DocumentType{"TERMS_OF_SERVICE"}, resp.CompliantDocumentTypes)

	s.Require().Len(s.auditor.events, 1)
	s.Equal(string(audit.EventComplianceChecked), s.auditor.events[0].Action)
	s.Equal("failure", s.auditor.events[0].Decision)
	s.Empty(s.auditor.events[0].ActorID)
}

func (s *ComplianceHandlerSuite) TestCheckOtherUserRequiresPermission() {
	other := id.UserID(uuid.New())
	body := map[string]any{
		"user_id": other.String(),
		"target":  map[string]string{"kind": "action", "code": "EXPORT_DATA"},
	}

	s.Run("denied", func() {
		s.permissions.EXPECT().HasPermission(gomock.Any(), s.caller, PermissionReadAny).Return(false, nil)
		rr := testutil.DoRequest(s.router, s.check(body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("allowed", func() {
		s.permissions.EXPECT().HasPermission(gomock.Any(), s.caller, PermissionReadAny).Return(true, nil)
		s.evaluator.EXPECT().Evaluate(gomock.Any(), other, models.Action("EXPORT_DATA")).
			Return(&models.Result{Target: models.Action("EXPORT_DATA"), Compliant: true}, nil)
		rr := testutil.DoRequest(s.router, s.check(body))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		s.Require().NotEmpty(s.auditor.events)
		last := s.auditor.events[len(s.auditor.events)-1]
		s.Equal(other, last.UserID)
		s.Equal(s.caller.String(), last.ActorID)
	})

	s.Run("permission store failure", func() {
		s.permissions.EXPECT().HasPermission(gomock.Any(), s.caller, PermissionReadAny).Return(false, errors.New("down"))
		rr := testutil.DoRequest(s.router, s.check(body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "storage_error")
	})
}

func (s *ComplianceHandlerSuite) TestCheckSelfByExplicitID() {
	s.evaluator.EXPECT().Evaluate(gomock.Any(), s.caller, gomock.Any()).
		Return(&models.Result{Compliant: true}, nil)
	rr := testutil.DoRequest(s.router, s.check(map[string]any{
		"user_id": s.caller.String(),
		"target":  map[string]string{"kind": "securityTier", "code": "TIER_0"},
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *ComplianceHandlerSuite) TestCheckErrors() {
	s.Run("invalid kind", func() {
		rr := testutil.DoRequest(s.router, s.check(map[string]any{
			"target": map[string]string{"kind": "department", "code": "X"},
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
	s.Run("storage failure", func() {
		s.evaluator.EXPECT().Evaluate(gomock.Any(), s.caller, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStorage, "compliance evaluation timed out"))
		rr := testutil.DoRequest(s.router, s.check(map[string]any{
			"target": map[string]string{"kind": "action", "code": "CREATE_VENTURE"},
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "storage_error")
	})
	s.Run("unauthenticated", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/check", map[string]any{
			"target": map[string]string{"kind": "action", "code": "CREATE_VENTURE"},
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *ComplianceHandlerSuite) TestTiers() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/tiers"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[TiersResponse](s.T(), rr)
	s.Require().Len(resp.Tiers, 4)
	s.Equal("TIER_0", resp.Tiers[0].TierCode)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/tiers/tier_3"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	tier := testutil.UnmarshalResponse[models.TierDescriptor](s.T(), rr)
	s.Contains(tier.RequiredDocumentTypes, docmodels.DocumentType("CROWN_JEWEL_IP_AGREEMENT"))
	s.NotEmpty(tier.Controls)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/tiers/TIER_9"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *ComplianceHandlerSuite) TestRequirements() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/requirements?kind=rbacLevel&code=MEMBER"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[RequirementsResponse](s.T(), rr)
	s.True(resp.Known)
	s.Equal([]docmodels.DocumentType{"CODE_OF_CONDUCT", "PRIVACY_POLICY", "TERMS_OF_SERVICE"}, resp.RequiredDocumentTypes)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/requirements?kind=action&code=LAUNCH_ROCKET"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp = testutil.UnmarshalResponse[RequirementsResponse](s.T(), rr)
	s.False(resp.Known)
	s.Empty(resp.RequiredDocumentTypes)
	s.NotNil(resp.RequiredDocumentTypes)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/compliance/requirements?kind=bogus&code=X"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
