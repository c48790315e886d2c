package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/httputil"
	"signet/pkg/requestcontext"
)

// PermissionReadAny allows checking compliance on behalf of another user.
const PermissionReadAny = "compliance:read_any"

type Evaluator interface {
	Evaluate(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, error)
}

type Catalog interface {
	RequiredDocuments(target models.Target) []docmodels.DocumentType
	Known(target models.Target) bool
	SecurityTier(code string) (models.TierDescriptor, bool)
	SecurityTiers() []models.TierDescriptor
}

type Permissions interface {
	HasPermission(ctx context.Context, userID id.UserID, permission string) (bool, error)
}

// Handler serves compliance queries. Evaluation is read-only; the only side
// effect is an audit record per check.
type Handler struct {
	evaluator   Evaluator
	catalog     Catalog
	permissions Permissions
	auditor     audit.Recorder
	logger      *slog.Logger
}

func New(evaluator Evaluator, catalog Catalog, permissions Permissions, auditor audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		evaluator:   evaluator,
		catalog:     catalog,
		permissions: permissions,
		auditor:     auditor,
		logger:      logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/compliance/check", h.handleCheck)
	r.Get("/compliance/tiers", h.handleTiers)
	r.Get("/compliance/tiers/{code}", h.handleTier)
	r.Get("/compliance/requirements", h.handleRequirements)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller := requestcontext.UserID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CheckComplianceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	subject := caller
	if !req.userID.IsNil() && req.userID != caller {
		allowed, err := h.permissions.HasPermission(ctx, caller, PermissionReadAny)
		if err != nil {
			h.writeFailure(ctx, w, "check compliance", dErrors.Wrap(err, dErrors.CodeStorage, "permission check failed"))
			return
		}
		if !allowed {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "checking another user's compliance requires "+PermissionReadAny))
			return
		}
		subject = req.userID
	}

	result, err := h.evaluator.Evaluate(ctx, subject, req.target)
	if err != nil {
		h.writeFailure(ctx, w, "check compliance", err)
		return
	}

	if h.auditor != nil {
		event := audit.Event{
			UserID:   subject,
			Subject:  req.target.String(),
			Action:   string(audit.EventComplianceChecked),
			Decision: audit.Outcome(result.Compliant),
		}
		if subject != caller {
			event.ActorID = caller.String()
		}
		h.auditor.Record(ctx, event)
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTiers(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, TiersResponse{Tiers: h.catalog.SecurityTiers()})
}

func (h *Handler) handleTier(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	tier, ok := h.catalog.SecurityTier(code)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown security tier "+code))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tier)
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target, err := models.ParseTarget(query.Get("kind"), query.Get("code"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RequirementsResponse{
		Target:                target,
		Known:                 h.catalog.Known(target),
		RequiredDocumentTypes: h.catalog.RequiredDocuments(target),
	})
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := []any{
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	}
	if dErrors.CodeOf(err) == dErrors.CodeStorage || dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op, attrs...)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
