package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signet/internal/admin"
	"signet/internal/compliance/catalog"
	"signet/internal/compliance/evaluator"
	compliancehandler "signet/internal/compliance/handler"
	"signet/internal/compliance/models"
	documenthandler "signet/internal/document/handler"
	"signet/internal/document/service"
	"signet/internal/document/signature"
	"signet/internal/document/sweeper"
	"signet/internal/gate"
	jwttoken "signet/internal/jwt_token"
	"signet/internal/platform/config"
	"signet/internal/platform/metrics"
	"signet/internal/rbac"
	rolehandler "signet/internal/rbac/handler"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/httputil"
	adminmw "signet/pkg/platform/middleware/admin"
	authmw "signet/pkg/platform/middleware/auth"
	"signet/pkg/platform/middleware/metadata"
	"signet/pkg/platform/middleware/request"
	"signet/pkg/platform/middleware/requesttime"
	"signet/pkg/requestcontext"
)

// application is the wired object graph the router serves.
type application struct {
	cfg        config.Server
	log        *slog.Logger
	inf        *infra
	documents  *service.Service
	signer     *signature.Processor
	evaluator  *evaluator.Evaluator
	catalog    *catalog.Catalog
	roles      *rbac.Store
	gate       *gate.Gate
	sweeper    *sweeper.Sweeper
	auditStore audit.Store
	auditor    audit.Recorder
	tokens     *jwttoken.JWTService
	// httpMetrics is optional so tests can build several routers.
	httpMetrics *metrics.Metrics
}

func (a *application) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if a.httpMetrics != nil {
		r.Use(a.httpMetrics.Middleware)
	}

	r.Get("/health", healthHandler(a.inf))
	r.Handle("/metrics", promhttp.Handler())
	if a.cfg.IsDev() {
		r.Post("/auth/dev-token", devTokenHandler(a.tokens, a.log))
	}

	r.Group(func(api chi.Router) {
		api.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(a.tokens), a.log))
		documenthandler.New(a.documents, a.signer, a.roles, a.log).Register(api)
		compliancehandler.New(a.evaluator, a.catalog, a.roles, a.auditor, a.log).Register(api)
		rolehandler.New(a.roles, a.gate, a.auditor, a.log).Register(api)
		registerProtectedRoutes(api, a.gate, a.log)
	})

	r.Group(func(ops chi.Router) {
		ops.Use(adminmw.RequireAdminToken(a.cfg.AdminToken, a.log))
		admin.New(a.roles, a.auditStore, a.sweeper, a.auditor, a.log).Register(ops)
	})
	return r
}

type ventureResponse struct {
	VentureID string    `json:"venture_id"`
	OwnerID   id.UserID `json:"owner_user_id"`
	RBACLevel string    `json:"rbac_level"`
}

type financialsResponse struct {
	UserID    id.UserID `json:"user_id"`
	Tier      string    `json:"security_tier"`
	RBACLevel string    `json:"rbac_level"`
}

// registerProtectedRoutes mounts the gated platform operations. Venture and
// financial data live in other services; these routes only show the gate
// contract: create and read go through the middleware, join through Guard.
func registerProtectedRoutes(r chi.Router, g *gate.Gate, log *slog.Logger) {
	r.With(g.Middleware("venture:create", models.Action("CREATE_VENTURE"))).
		Post("/ventures", func(w http.ResponseWriter, r *http.Request) {
			grant, _ := gate.FromContext(r.Context())
			httputil.WriteJSON(w, http.StatusCreated, ventureResponse{
				VentureID: uuid.NewString(),
				OwnerID:   grant.UserID,
				RBACLevel: grant.RBACLevel,
			})
		})

	r.With(g.Middleware("financials:read", models.SecurityTier("TIER_2"))).
		Get("/financials", func(w http.ResponseWriter, r *http.Request) {
			grant, _ := gate.FromContext(r.Context())
			httputil.WriteJSON(w, http.StatusOK, financialsResponse{
				UserID:    grant.UserID,
				Tier:      "TIER_2",
				RBACLevel: grant.RBACLevel,
			})
		})

	r.Post("/ventures/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ventureID := chi.URLParam(r, "id")
		resp, err := gate.Guard(ctx, g, gate.Request{
			UserID:     requestcontext.UserID(ctx),
			Permission: "venture:join",
			Target:     models.Action("JOIN_VENTURE"),
		}, func(ctx context.Context) (ventureResponse, error) {
			grant, _ := gate.FromContext(ctx)
			log.InfoContext(ctx, "venture joined",
				"venture_id", ventureID,
				"user_id", grant.UserID,
				"request_id", requestcontext.RequestID(ctx),
			)
			return ventureResponse{VentureID: ventureID, RBACLevel: grant.RBACLevel}, nil
		})
		if err != nil {
			gate.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	})
}

func healthHandler(inf *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if inf.db != nil {
			if err := inf.db.PingContext(ctx); err != nil {
				status["postgres"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if inf.redis != nil {
			if err := inf.redis.Health(ctx); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}

type devTokenRequest struct {
	UserID string `json:"user_id"`
}

// devTokenHandler mints short-lived access tokens so the API can be exercised
// without the identity service. Only mounted outside prod.
func devTokenHandler(tokens *jwttoken.JWTService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req devTokenRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
			return
		}
		userID := id.UserID(uuid.New())
		if req.UserID != "" {
			parsed, err := id.ParseUserID(req.UserID)
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "user_id must be a UUID"))
				return
			}
			userID = parsed
		}
		token, err := tokens.IssueToken(userID, time.Hour)
		if err != nil {
			log.ErrorContext(ctx, "failed to issue dev token", "error", err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"access_token": token,
			"token_type":   "Bearer",
			"user_id":      userID.String(),
		})
	}
}
