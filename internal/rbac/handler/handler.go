// Package handler serves the self-service role routes. Upgrading to a level
// passes through the access gate, so a user can only claim a level whose
// required documents they have signed.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	"signet/internal/gate"
	"signet/internal/rbac"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/httputil"
	"signet/pkg/requestcontext"
)

// PermissionUpgrade is required to claim any self-service level.
const PermissionUpgrade = "roles:upgrade"

type Roles interface {
	Level(ctx context.Context, userID id.UserID) (rbac.Level, error)
	LookupLevel(code string) (rbac.Level, bool)
	Levels() []string
	AssignRole(ctx context.Context, userID id.UserID, role string) error
}

type Gate interface {
	Check(ctx context.Context, req gate.Request) (*gate.Grant, error)
}

type Handler struct {
	roles   Roles
	gate    Gate
	auditor audit.Recorder
	logger  *slog.Logger
}

func New(roles Roles, g Gate, auditor audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{roles: roles, gate: g, auditor: auditor, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/roles/me", h.handleCurrent)
	r.Post("/roles/upgrade", h.handleUpgrade)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	level, err := h.roles.Level(ctx, userID)
	if err != nil {
		h.writeFailure(ctx, w, "read role", dErrors.Wrap(err, dErrors.CodeStorage, "role lookup failed"))
		return
	}

	perms := make([]string, 0, len(level.Permissions))
	for p, ok := range level.Permissions {
		if ok {
			perms = append(perms, p)
		}
	}
	slices.Sort(perms)

	upgrades := []string{}
	for _, code := range h.roles.Levels() {
		if l, ok := h.roles.LookupLevel(code); ok && l.SelfService && l.Rank > level.Rank {
			upgrades = append(upgrades, l.Code)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, RoleResponse{
		UserID:      userID,
		RBACLevel:   level.Code,
		Permissions: perms,
		Upgrades:    upgrades,
	})
}

func (h *Handler) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpgradeRoleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	target, ok := h.roles.LookupLevel(req.Role)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown role "+req.Role))
		return
	}
	if !target.SelfService {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role "+target.Code+" is assigned by an operator"))
		return
	}
	current, err := h.roles.Level(ctx, userID)
	if err != nil {
		h.writeFailure(ctx, w, "upgrade role", dErrors.Wrap(err, dErrors.CodeStorage, "role lookup failed"))
		return
	}
	if current.Rank >= target.Rank {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "already at "+current.Code))
		return
	}

	grant, err := h.gate.Check(ctx, gate.Request{
		UserID:     userID,
		Permission: PermissionUpgrade,
		Target:     models.RBACLevel(target.Code),
	})
	if err != nil {
		if _, denied := gate.AsRejection(err); denied {
			h.logger.InfoContext(ctx, "role upgrade denied",
				"user_id", userID,
				"role", target.Code,
				"request_id", requestID,
			)
			gate.WriteError(w, err)
			return
		}
		h.writeFailure(ctx, w, "upgrade role", err)
		return
	}

	if err := h.roles.AssignRole(ctx, userID, target.Code); err != nil {
		h.writeFailure(ctx, w, "upgrade role", err)
		return
	}
	if h.auditor != nil {
		h.auditor.Record(ctx, audit.Event{
			UserID:   userID,
			Subject:  target.Code,
			Action:   string(audit.EventRoleAssigned),
			Decision: audit.Outcome(true),
			Reason:   "self-service upgrade from " + current.Code,
		})
	}
	h.logger.InfoContext(ctx, "role upgraded",
		"user_id", userID,
		"from", current.Code,
		"to", target.Code,
		"request_id", requestID,
	)

	satisfied := []docmodels.DocumentType{}
	if grant.Result != nil {
		satisfied = grant.Result.CompliantDocumentTypes
	}
	httputil.WriteJSON(w, http.StatusOK, UpgradeRoleResponse{
		UserID:               userID,
		PreviousLevel:        current.Code,
		RBACLevel:            target.Code,
		SatisfiedRequirement: satisfied,
	})
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.ErrorContext(ctx, "failed to "+op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
