package main

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"signet/internal/compliance/catalog"
	"signet/internal/compliance/evaluator"
	documenthandler "signet/internal/document/handler"
	docmodels "signet/internal/document/models"
	"signet/internal/document/service"
	"signet/internal/document/signature"
	"signet/internal/document/store"
	"signet/internal/document/sweeper"
	"signet/internal/document/template"
	"signet/internal/gate"
	jwttoken "signet/internal/jwt_token"
	"signet/internal/platform/config"
	"signet/internal/rbac"
	rolehandler "signet/internal/rbac/handler"
	id "signet/pkg/domain"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/audit/publisher"
	auditmemory "signet/pkg/platform/audit/store/memory"
	"signet/pkg/testutil"
)

const adminToken = "ops-token"

// RoutesSuite drives the wired router end to end: a visitor signs the
// documents a level and an action require and is let through only then.
type RoutesSuite struct {
	suite.Suite
	handler    http.Handler
	tokens     *jwttoken.JWTService
	auditStore *auditmemory.InMemoryStore
	user       id.UserID
	token      string
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}

func (s *RoutesSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Server{Environment: "dev", AdminToken: adminToken}

	templates, err := template.Default()
	s.Require().NoError(err)
	requirements, err := catalog.Default()
	s.Require().NoError(err)
	s.Require().NoError(requirements.CheckTypes(templates.Types()))
	roles, err := rbac.Default()
	s.Require().NoError(err)

	documents := store.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	auditor := publisher.NewPublisher(s.auditStore)

	cache, err := evaluator.NewMemoryCache(128)
	s.Require().NoError(err)
	eval := evaluator.New(documents, requirements, evaluator.WithLogger(log), evaluator.WithCache(cache, time.Minute))
	s.tokens = jwttoken.NewJWTService("test-key", "signet", "signet-api")

	app := &application{
		cfg:        cfg,
		log:        log,
		inf:        &infra{},
		documents:  service.New(documents, templates, service.WithLogger(log), service.WithAuditor(auditor)),
		signer:     signature.New(documents, signature.WithLogger(log), signature.WithAuditor(auditor), signature.WithInvalidator(eval)),
		evaluator:  eval,
		catalog:    requirements,
		roles:      roles,
		gate:       gate.New(roles, eval, gate.WithAuditor(auditor), gate.WithLogger(log)),
		sweeper:    sweeper.New(documents, time.Hour, sweeper.WithLogger(log)),
		auditStore: s.auditStore,
		auditor:    auditor,
		tokens:     s.tokens,
	}
	s.handler = app.routes()

	s.user = id.UserID(uuid.New())
	s.token, err = s.tokens.IssueToken(s.user, time.Hour)
	s.Require().NoError(err)
}

func (s *RoutesSuite) authed(req *http.Request) *http.Request {
	return testutil.WithBearer(req, s.token)
}

func (s *RoutesSuite) sign(types ...docmodels.DocumentType) {
	for _, t := range types {
		rr := testutil.DoRequest(s.handler, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]any{
			"type_code": t,
			"variables": map[string]string{"party_name": "Ada Lovelace"},
		})))
		s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
		drafted := testutil.UnmarshalResponse[documenthandler.DraftDocumentResponse](s.T(), rr)

		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents/"+drafted.DocumentID.String()+"/sign", map[string]string{
			"signer_name":  "Ada Lovelace",
			"signer_email": "ada@example.com",
		}))
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0")
		rr = testutil.DoRequest(s.handler, req)
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	}
}

func (s *RoutesSuite) TestRequiresBearerToken() {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/templates"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	rr = testutil.DoRequest(s.handler, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/templates")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *RoutesSuite) TestUpgradeThenCreateVenture() {
	rr := testutil.DoRequest(s.handler, s.authed(testutil.NewRequest(s.T(), http.MethodPost, "/ventures")))
	s.Require().Equal(http.StatusForbidden, rr.Code)
	forbidden := testutil.UnmarshalResponse[gate.RejectionResponse](s.T(), rr)
	s.Equal("forbidden", forbidden.Error)
	s.Equal("venture:create", forbidden.RequiredPermission)

	upgrade := func() *http.Request {
		return s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/roles/upgrade", map[string]string{"role": "VENTURE_OWNER"}))
	}
	rr = testutil.DoRequest(s.handler, upgrade())
	s.Require().Equal(http.StatusForbidden, rr.Code)
	blocked := testutil.UnmarshalResponse[gate.RejectionResponse](s.T(), rr)
	s.Equal("compliance_required", blocked.Error)
	s.Len(blocked.MissingDocumentTypes, 8)

	s.sign("TERMS_OF_SERVICE", "PRIVACY_POLICY", "CODE_OF_CONDUCT", "NDA",
		"CONTRIBUTOR_AGREEMENT", "IP_ASSIGNMENT", "OPERATING_AGREEMENT", "EQUITY_AGREEMENT")

	rr = testutil.DoRequest(s.handler, upgrade())
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	upgraded := testutil.UnmarshalResponse[rolehandler.UpgradeRoleResponse](s.T(), rr)
	s.Equal("VISITOR", upgraded.PreviousLevel)
	s.Equal("VENTURE_OWNER", upgraded.RBACLevel)

	rr = testutil.DoRequest(s.handler, s.authed(testutil.NewRequest(s.T(), http.MethodPost, "/ventures")))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	testutil.AssertJSONContains(s.T(), rr, "rbac_level", "VENTURE_OWNER")
}

type complianceBody struct {
	Compliant bool `json:"compliant"`
}

func (s *RoutesSuite) TestSigningInvalidatesCachedVerdict() {
	check := func() bool {
		rr := testutil.DoRequest(s.handler, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/check", map[string]any{
			"target": map[string]string{"kind": "action", "code": "EXPORT_DATA"},
		})))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		return testutil.UnmarshalResponse[complianceBody](s.T(), rr).Compliant
	}

	s.False(check())
	s.sign("PRIVACY_POLICY", "DATA_PROCESSING_AGREEMENT")
	s.True(check(), "signing must invalidate the cached non-compliant verdict")
}

func (s *RoutesSuite) TestCannotSignForAnotherUser() {
	victim := id.UserID(uuid.New())
	victimToken, err := s.tokens.IssueToken(victim, time.Hour)
	s.Require().NoError(err)

	rr := testutil.DoRequest(s.handler, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]any{
		"type_code":     "TERMS_OF_SERVICE",
		"owner_user_id": victim.String(),
	})))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	// A document the victim drafted is invisible to everyone else.
	rr = testutil.DoRequest(s.handler, testutil.WithBearer(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]any{
		"type_code": "TERMS_OF_SERVICE",
	}), victimToken))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	drafted := testutil.UnmarshalResponse[documenthandler.DraftDocumentResponse](s.T(), rr)
	path := "/documents/" + drafted.DocumentID.String()

	rr = testutil.DoRequest(s.handler, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, path+"/sign", map[string]string{
		"signer_name":  "Mallory",
		"signer_email": "mallory@example.com",
	})))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	for _, p := range []string{path, path + "/text"} {
		rr = testutil.DoRequest(s.handler, s.authed(testutil.NewRequest(s.T(), http.MethodGet, p)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	}

	rr = testutil.DoRequest(s.handler, testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, path), victimToken))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	doc := testutil.UnmarshalResponse[docmodels.Document](s.T(), rr)
	s.Equal(docmodels.StatusDrafted, doc.Status)

	rr = testutil.DoRequest(s.handler, testutil.WithBearer(testutil.NewJSONRequest(s.T(), http.MethodPost, "/compliance/check", map[string]any{
		"target": map[string]string{"kind": "rbacLevel", "code": "MEMBER"},
	}), victimToken))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.False(testutil.UnmarshalResponse[complianceBody](s.T(), rr).Compliant)
}

func (s *RoutesSuite) TestJoinVentureUsesGuard() {
	other, err := s.tokens.IssueToken(id.UserID(uuid.New()), time.Hour)
	s.Require().NoError(err)
	rr := testutil.DoRequest(s.handler, testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodPost, "/ventures/v-1/join"), other))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *RoutesSuite) TestAdminRoutesNeedToken() {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	s.sign("TERMS_OF_SERVICE")
	req := testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit?user_id="+s.user.String())
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.handler, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	events, err := s.auditStore.ListByUser(req.Context(), s.user)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, string(audit.EventDocumentDrafted))
	s.Contains(actions, string(audit.EventDocumentSigned))
}

func (s *RoutesSuite) TestDevToken() {
	rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/dev-token", map[string]string{
		"user_id": s.user.String(),
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := *testutil.UnmarshalResponse[map[string]string](s.T(), rr)
	s.Equal(s.user.String(), body["user_id"])

	claims, err := s.tokens.ValidateToken(body["access_token"])
	s.Require().NoError(err)
	s.Equal(s.user.String(), claims.UserID)
}
