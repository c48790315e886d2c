// Package admin serves operator endpoints: direct role assignment, audit
// trail inspection and on-demand expiry sweeps. Routes are registered behind
// the admin token middleware.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"signet/internal/rbac"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/httputil"
	"signet/pkg/requestcontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type Roles interface {
	Level(ctx context.Context, userID id.UserID) (rbac.Level, error)
	AssignRole(ctx context.Context, userID id.UserID, role string) error
}

type AuditReader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Sweeper interface {
	SweepAt(ctx context.Context, now time.Time) (int, error)
}

type Handler struct {
	roles   Roles
	audit   AuditReader
	sweeper Sweeper
	auditor audit.Recorder
	logger  *slog.Logger
}

func New(roles Roles, reader AuditReader, sweeper Sweeper, auditor audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{roles: roles, audit: reader, sweeper: sweeper, auditor: auditor, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/roles", h.handleAssignRole)
	r.Get("/admin/audit", h.handleAudit)
	r.Post("/admin/sweep", h.handleSweep)
}

// handleAssignRole bypasses the compliance gate: operators may assign any
// level, including downgrades.
func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AssignRoleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	previous, err := h.roles.Level(ctx, req.userID)
	if err != nil {
		h.writeFailure(ctx, w, "assign role", dErrors.Wrap(err, dErrors.CodeStorage, "role lookup failed"))
		return
	}
	if err := h.roles.AssignRole(ctx, req.userID, req.Role); err != nil {
		h.writeFailure(ctx, w, "assign role", err)
		return
	}
	if h.auditor != nil {
		h.auditor.Record(ctx, audit.Event{
			UserID:   req.userID,
			Subject:  req.Role,
			Action:   string(audit.EventRoleAssigned),
			Decision: audit.Outcome(true),
			Reason:   "operator assignment from " + previous.Code,
			ActorID:  "admin",
		})
	}
	h.logger.InfoContext(ctx, "role assigned by operator",
		"user_id", req.userID,
		"from", previous.Code,
		"to", req.Role,
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, AssignRoleResponse{
		UserID:        req.userID.String(),
		PreviousLevel: previous.Code,
		RBACLevel:     req.Role,
	})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var (
		events []audit.Event
		err    error
	)
	if raw := query.Get("user_id"); raw != "" {
		userID, parseErr := id.ParseUserID(raw)
		if parseErr != nil {
			httputil.WriteError(w, dErrors.Wrap(parseErr, dErrors.CodeValidation, "user_id must be a UUID"))
			return
		}
		events, err = h.audit.ListByUser(ctx, userID)
	} else {
		limit, limitErr := parseLimit(query.Get("limit"))
		if limitErr != nil {
			httputil.WriteError(w, limitErr)
			return
		}
		events, err = h.audit.ListRecent(ctx, limit)
	}
	if err != nil {
		h.writeFailure(ctx, w, "list audit events", dErrors.Wrap(err, dErrors.CodeStorage, "audit store unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditList(events))
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxAuditLimit {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and "+strconv.Itoa(maxAuditLimit))
	}
	return n, nil
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := requestcontext.Now(ctx)
	n, err := h.sweeper.SweepAt(ctx, now)
	if err != nil {
		h.writeFailure(ctx, w, "sweep expired documents", dErrors.Wrap(err, dErrors.CodeStorage, "expiry sweep failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SweepResponse{Expired: n, SweptAt: now})
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.ErrorContext(ctx, "failed to "+op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
