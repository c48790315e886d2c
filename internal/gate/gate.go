// Package gate enforces RBAC permissions and document compliance in front of
// protected operations. RBAC is always checked first; compliance is only
// evaluated for callers that hold the permission.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"signet/internal/compliance/metrics"
	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/requestcontext"
)

// RBAC is the external permission store.
type RBAC interface {
	HasPermission(ctx context.Context, userID id.UserID, permission string) (bool, error)
	LevelCode(ctx context.Context, userID id.UserID) (string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, error)
}

type RejectionKind string

const (
	KindForbidden          RejectionKind = "forbidden"
	KindComplianceRequired RejectionKind = "compliance_required"
)

// Rejection is the structured outcome of a denied check. It is returned as
// an error but is not a fault: callers route users to an "access denied"
// or a "sign these documents" flow depending on Kind.
type Rejection struct {
	Kind       RejectionKind
	Permission string
	Target     models.Target
	Missing    []docmodels.DocumentType
	Required   []docmodels.DocumentType
}

func (r *Rejection) Error() string {
	if r.Kind == KindForbidden {
		return "missing permission " + r.Permission
	}
	names := make([]string, 0, len(r.Missing))
	for _, t := range r.Missing {
		names = append(names, string(t))
	}
	return "missing signed documents: " + strings.Join(names, ", ")
}

// Unwrap exposes the matching domain error so generic error writers map a
// rejection to 403.
func (r *Rejection) Unwrap() error {
	code := dErrors.CodeForbidden
	if r.Kind == KindComplianceRequired {
		code = dErrors.CodeComplianceRequired
	}
	return dErrors.New(code, r.Error())
}

// AsRejection extracts a *Rejection from err's chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

type Request struct {
	UserID     id.UserID
	Permission string
	Target     models.Target
}

// Grant is attached to the context of an operation that passed the gate.
type Grant struct {
	UserID    id.UserID
	RBACLevel string
	Result    *models.Result
}

type grantKey struct{}

// FromContext returns the grant Guard or Middleware attached to ctx.
func FromContext(ctx context.Context) (*Grant, bool) {
	g, ok := ctx.Value(grantKey{}).(*Grant)
	return g, ok
}

func withGrant(ctx context.Context, g *Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

type Gate struct {
	rbac      RBAC
	evaluator Evaluator
	auditor   audit.Recorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Gate)

func WithAuditor(a audit.Recorder) Option {
	return func(g *Gate) { g.auditor = a }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func New(rbac RBAC, evaluator Evaluator, opts ...Option) *Gate {
	g := &Gate{
		rbac:      rbac,
		evaluator: evaluator,
		logger:    slog.Default(),
		tracer:    otel.Tracer("signet/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs the RBAC check and then the compliance check. Denials are
// returned as *Rejection; infrastructure failures as domain errors.
func (g *Gate) Check(ctx context.Context, req Request) (*Grant, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Check", trace.WithAttributes(
		attribute.String("gate.permission", req.Permission),
		attribute.String("gate.target", req.Target.String()),
	))
	defer span.End()

	if req.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req.Permission == "" || !req.Target.Kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "gate requires a permission and a valid target")
	}

	allowed, err := g.rbac.HasPermission(ctx, req.UserID, req.Permission)
	if err != nil {
		g.metrics.IncrementGateDecision("error")
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "permission check failed")
	}
	if !allowed {
		rej := &Rejection{Kind: KindForbidden, Permission: req.Permission, Target: req.Target}
		g.deny(ctx, span, req, rej)
		return nil, rej
	}

	result, err := g.evaluator.Evaluate(ctx, req.UserID, req.Target)
	if err != nil {
		g.metrics.IncrementGateDecision("error")
		return nil, err
	}
	if !result.Compliant {
		rej := &Rejection{
			Kind:       KindComplianceRequired,
			Permission: req.Permission,
			Target:     req.Target,
			Missing:    result.MissingDocumentTypes,
			Required:   result.RequiredDocumentTypes,
		}
		g.deny(ctx, span, req, rej)
		return nil, rej
	}

	level, err := g.rbac.LevelCode(ctx, req.UserID)
	if err != nil {
		g.metrics.IncrementGateDecision("error")
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "role lookup failed")
	}

	g.metrics.IncrementGateDecision("granted")
	span.SetAttributes(attribute.String("gate.decision", "granted"))
	g.record(ctx, req, audit.EventAccessGranted, true, req.Target.String())
	return &Grant{UserID: req.UserID, RBACLevel: level, Result: result}, nil
}

func (g *Gate) deny(ctx context.Context, span trace.Span, req Request, rej *Rejection) {
	g.metrics.IncrementGateDecision(string(rej.Kind))
	span.SetAttributes(attribute.String("gate.decision", string(rej.Kind)))
	g.logger.InfoContext(ctx, "access denied",
		"user_id", req.UserID,
		"permission", req.Permission,
		"target", req.Target.String(),
		"kind", rej.Kind,
		"request_id", requestcontext.RequestID(ctx),
	)
	g.record(ctx, req, audit.EventAccessDenied, false, rej.Error())
}

func (g *Gate) record(ctx context.Context, req Request, action audit.AuditEvent, success bool, reason string) {
	if g.auditor == nil {
		return
	}
	g.auditor.Record(ctx, audit.Event{
		UserID:   req.UserID,
		Subject:  req.Target.String(),
		Action:   string(action),
		Decision: audit.Outcome(success),
		Reason:   reason,
	})
}

// Guard runs op only if req passes the gate, with the grant on op's context.
func Guard[T any](ctx context.Context, g *Gate, req Request, op func(ctx context.Context) (T, error)) (T, error) {
	grant, err := g.Check(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return op(withGrant(ctx, grant))
}
