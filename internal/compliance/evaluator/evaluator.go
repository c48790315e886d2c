// Package evaluator decides whether a user holds every signed document a
// compliance target requires.
package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"signet/internal/compliance/metrics"
	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/requestcontext"
)

// DocumentFinder is the read side of the document store.
type DocumentFinder interface {
	FindByOwnerAndType(ctx context.Context, owner id.UserID, typeCode docmodels.DocumentType) ([]*docmodels.Document, error)
}

type Requirements interface {
	RequiredDocuments(target models.Target) []docmodels.DocumentType
}

type Evaluator struct {
	documents DocumentFinder
	catalog   Requirements
	cache     Cache
	cacheTTL  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithTimeout bounds the store lookups of one evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache enables result caching. Verdicts are not cached without it.
// Entries never outlive ttl or the earliest expiry among the documents that
// satisfied the target; a non-positive ttl leaves caching off.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Evaluator) {
		if c == nil || ttl <= 0 {
			return
		}
		e.cache = c
		e.cacheTTL = ttl
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Evaluator) { e.tracer = t }
}

func New(documents DocumentFinder, catalog Requirements, opts ...Option) *Evaluator {
	e := &Evaluator{
		documents: documents,
		catalog:   catalog,
		timeout:   2 * time.Second,
		logger:    slog.Default(),
		tracer:    otel.Tracer("signet/compliance"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate partitions the target's required document types into those the
// user has a signed, unexpired instance of and those still missing. Any one
// qualifying instance satisfies a type. Store failures and timeouts are
// CodeStorage errors.
func (e *Evaluator) Evaluate(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, error) {
	ctx, span := e.tracer.Start(ctx, "compliance.Evaluate", trace.WithAttributes(
		attribute.String("compliance.target_kind", string(target.Kind)),
		attribute.String("compliance.target_code", target.Code),
	))
	defer span.End()

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if !target.Kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown target kind "+string(target.Kind))
	}

	var (
		gen       uint64
		cacheable bool
	)
	if e.cache != nil {
		gen, cacheable = e.cache.Generation(ctx, userID)
		cached, ok := e.cache.Get(ctx, userID, target)
		e.metrics.IncrementCache(ok)
		if ok {
			span.SetAttributes(attribute.Bool("compliance.cached", true), attribute.Bool("compliance.compliant", cached.Compliant))
			return cached, nil
		}
	}

	start := time.Now()
	result, validUntil, err := e.evaluate(ctx, userID, target)
	if err != nil {
		e.metrics.IncrementEvaluation(string(target.Kind), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		e.logger.ErrorContext(ctx, "compliance evaluation failed",
			"user_id", userID,
			"target", target.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	e.metrics.ObserveEvaluation(time.Since(start))
	e.metrics.IncrementEvaluation(string(target.Kind), outcome(result))
	span.SetAttributes(
		attribute.Bool("compliance.compliant", result.Compliant),
		attribute.Int("compliance.missing", len(result.MissingDocumentTypes)),
	)

	if cacheable {
		ttl := e.cacheTTL
		if !validUntil.IsZero() {
			if until := validUntil.Sub(result.EvaluatedAt); until < ttl {
				ttl = until
			}
		}
		e.cache.Set(ctx, userID, gen, result, ttl)
	}
	return result, nil
}

// Invalidate drops cached verdicts for userID. The signature processor calls
// it after every successful signature.
func (e *Evaluator) Invalidate(ctx context.Context, userID id.UserID) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, userID)
	}
}

// evaluate also returns the earliest expiry among the documents that counted,
// or the zero time when none of them expire.
func (e *Evaluator) evaluate(ctx context.Context, userID id.UserID, target models.Target) (*models.Result, time.Time, error) {
	now := requestcontext.Now(ctx)
	required := e.catalog.RequiredDocuments(target)

	satisfied := make([]bool, len(required))
	expiries := make([]time.Time, len(required))

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(lookupCtx)
	for i, typeCode := range required {
		g.Go(func() error {
			docs, err := e.documents.FindByOwnerAndType(gctx, userID, typeCode)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if !doc.Counts(now) {
					continue
				}
				if !satisfied[i] {
					satisfied[i] = true
					if doc.ExpiresAt != nil {
						expiries[i] = *doc.ExpiresAt
					}
					continue
				}
				// Prefer the instance that stays valid longest.
				switch {
				case doc.ExpiresAt == nil:
					expiries[i] = time.Time{}
				case !expiries[i].IsZero() && doc.ExpiresAt.After(expiries[i]):
					expiries[i] = *doc.ExpiresAt
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, time.Time{}, dErrors.Wrap(err, dErrors.CodeStorage, "compliance evaluation timed out")
		}
		return nil, time.Time{}, dErrors.Wrap(err, dErrors.CodeStorage, "compliance evaluation failed")
	}

	result := &models.Result{
		Target:                 target,
		RequiredDocumentTypes:  required,
		CompliantDocumentTypes: make([]docmodels.DocumentType, 0, len(required)),
		MissingDocumentTypes:   make([]docmodels.DocumentType, 0, len(required)),
		EvaluatedAt:            now,
	}
	var validUntil time.Time
	for i, typeCode := range required {
		if !satisfied[i] {
			result.MissingDocumentTypes = append(result.MissingDocumentTypes, typeCode)
			continue
		}
		result.CompliantDocumentTypes = append(result.CompliantDocumentTypes, typeCode)
		if exp := expiries[i]; !exp.IsZero() && (validUntil.IsZero() || exp.Before(validUntil)) {
			validUntil = exp
		}
	}
	result.Compliant = len(result.MissingDocumentTypes) == 0
	return result, validUntil, nil
}

func outcome(r *models.Result) string {
	if r.Compliant {
		return "compliant"
	}
	return "non_compliant"
}
