// Package service orchestrates drafting, reading and the start of signing.
// Signature capture itself lives in the signature package.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"signet/internal/document/generator"
	"signet/internal/document/metrics"
	"signet/internal/document/models"
	"signet/internal/document/template"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/sentinel"
	"signet/pkg/requestcontext"
)

const (
	maxVariables     = 64
	maxVariableKey   = 64
	maxVariableValue = 4096
)

type Store interface {
	Create(ctx context.Context, doc models.NewDocument) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Text(ctx context.Context, docID id.DocumentID) (string, error)
	UpdateStatus(ctx context.Context, upd models.StatusUpdate) (*models.Document, error)
}

// Templates is the read side of the template registry.
type Templates interface {
	generator.TemplateSource
	Types() []models.DocumentType
}

// OTPIssuer creates a one-time signing challenge for a document.
type OTPIssuer interface {
	Issue(ctx context.Context, docID id.DocumentID) (string, error)
}

// DraftRequest is the input to Draft. A nil OwnerUserID means the caller.
type DraftRequest struct {
	TypeCode    models.DocumentType
	OwnerUserID id.UserID
	Variables   map[string]string
}

// SigningStarted reports the state after BeginSigning.
type SigningStarted struct {
	DocumentID   id.DocumentID
	Status       models.Status
	OTPExpiresAt time.Time
}

type Service struct {
	store           Store
	templates       Templates
	generator       *generator.Generator
	otp             OTPIssuer
	otpTTL          time.Duration
	auditor         audit.Recorder
	logger          *slog.Logger
	metrics         *metrics.Metrics
	generateTimeout time.Duration
	revealOTP       bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditor(a audit.Recorder) Option {
	return func(s *Service) { s.auditor = a }
}

// WithOTP enables BeginSigning. ttl is reported back to callers and should
// match the issuer's own TTL.
func WithOTP(issuer OTPIssuer, ttl time.Duration) Option {
	return func(s *Service) {
		s.otp = issuer
		s.otpTTL = ttl
	}
}

// WithGenerateTimeout bounds generation plus persistence of one draft.
func WithGenerateTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.generateTimeout = d
		}
	}
}

// WithRevealOTP logs issued codes at debug level. Development only.
func WithRevealOTP(reveal bool) Option {
	return func(s *Service) { s.revealOTP = reveal }
}

func New(store Store, templates Templates, opts ...Option) *Service {
	s := &Service{
		store:           store,
		templates:       templates,
		generator:       generator.New(templates),
		logger:          slog.Default(),
		generateTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft generates a document from its template and persists it as DRAFTED.
// Unknown type codes are validation errors here: the caller asked for a
// document the registry cannot produce.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (*models.Document, error) {
	owner := req.OwnerUserID
	if owner.IsNil() {
		owner = requestcontext.UserID(ctx)
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner_user_id is required")
	}
	if err := validateVariables(req.Variables); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()
	start := time.Now()

	out, err := s.generator.Generate(req.TypeCode, req.Variables)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "unknown document type "+string(req.TypeCode))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate document")
	}

	now := requestcontext.Now(ctx)
	var expiresAt *time.Time
	if out.ValidFor > 0 {
		t := now.Add(out.ValidFor).UTC()
		expiresAt = &t
	}

	doc, err := s.store.Create(ctx, models.NewDocument{
		TypeCode:        req.TypeCode,
		OwnerUserID:     owner,
		Variables:       req.Variables,
		Text:            out.Text,
		CanonicalHash:   out.CanonicalHash,
		ExpiresAt:       expiresAt,
		TemplateVersion: out.TemplateVersion,
		CreatedAt:       now,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist document",
			"type_code", req.TypeCode,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, storageError(err, "persist document")
	}
	s.metrics.ObserveGenerateLatency(time.Since(start))
	s.metrics.IncrementDrafted(string(doc.TypeCode))

	s.logger.InfoContext(ctx, "document drafted",
		"document_id", doc.ID,
		"type_code", doc.TypeCode,
		"owner_user_id", doc.OwnerUserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.record(ctx, audit.EventDocumentDrafted, doc, true, string(doc.TypeCode))
	return doc, nil
}

// Get returns document metadata. A pending document found past its expiry
// is expired on the spot.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return nil, translate(err, "load document")
	}
	return s.expireIfDue(ctx, doc)
}

// Text returns the stored document text including its integrity footer.
func (s *Service) Text(ctx context.Context, docID id.DocumentID) (string, error) {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return "", translate(err, "load document")
	}
	text, err := s.store.Text(ctx, docID)
	if err != nil {
		return "", translate(err, "load document text")
	}
	s.record(ctx, audit.EventDocumentAccessed, doc, true, "text")
	return text, nil
}

// Templates lists the registered templates in type-code order.
func (s *Service) Templates() []template.Template {
	types := s.templates.Types()
	out := make([]template.Template, 0, len(types))
	for _, t := range types {
		tmpl, err := s.templates.Lookup(t)
		if err != nil {
			continue
		}
		out = append(out, tmpl)
	}
	return out
}

// BeginSigning issues an OTP challenge and moves a DRAFTED document to
// SIGNING. Calling it again on a SIGNING document replaces the challenge.
func (s *Service) BeginSigning(ctx context.Context, docID id.DocumentID) (*SigningStarted, error) {
	if s.otp == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "otp signing is not enabled")
	}
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	switch doc.Status {
	case models.StatusSigned:
		return nil, dErrors.New(dErrors.CodeConflict, "document is already signed")
	case models.StatusExpired:
		return nil, dErrors.New(dErrors.CodeExpired, "document has expired")
	case models.StatusDrafted:
		doc, err = s.store.UpdateStatus(ctx, models.StatusUpdate{
			ID:   docID,
			From: models.StatusDrafted,
			To:   models.StatusSigning,
			At:   requestcontext.Now(ctx),
		})
		if err != nil {
			return nil, translate(err, "start signing")
		}
		s.record(ctx, audit.EventSigningStarted, doc, true, "")
	}

	code, err := s.otp.Issue(ctx, docID)
	if err != nil {
		return nil, storageError(err, "issue otp")
	}
	if s.revealOTP {
		s.logger.DebugContext(ctx, "otp issued",
			"document_id", docID,
			"otp_code", code,
		)
	}
	s.record(ctx, audit.EventOTPIssued, doc, true, "")

	return &SigningStarted{
		DocumentID:   docID,
		Status:       doc.Status,
		OTPExpiresAt: requestcontext.Now(ctx).Add(s.otpTTL).UTC(),
	}, nil
}

func (s *Service) expireIfDue(ctx context.Context, doc *models.Document) (*models.Document, error) {
	now := requestcontext.Now(ctx)
	if !doc.Status.Pending() || !doc.ExpiredAt(now) {
		return doc, nil
	}
	expired, err := s.store.UpdateStatus(ctx, models.StatusUpdate{
		ID:   doc.ID,
		From: doc.Status,
		To:   models.StatusExpired,
		At:   now,
	})
	switch {
	case err == nil:
		s.metrics.AddExpired(1)
		s.record(ctx, audit.EventDocumentExpired, expired, true, "expired on read")
		return expired, nil
	case errors.Is(err, sentinel.ErrConflict):
		// Someone else moved it first; report whatever it is now.
		current, getErr := s.store.Get(ctx, doc.ID)
		if getErr != nil {
			return nil, translate(getErr, "load document")
		}
		return current, nil
	default:
		return nil, translate(err, "expire document")
	}
}

func (s *Service) record(ctx context.Context, action audit.AuditEvent, doc *models.Document, success bool, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:      doc.OwnerUserID,
		Subject:     doc.ID.String(),
		Action:      string(action),
		Decision:    audit.Outcome(success),
		Reason:      reason,
		ContentHash: doc.CanonicalHash,
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != doc.OwnerUserID {
		event.ActorID = actor.String()
	}
	s.auditor.Record(ctx, event)
}

func validateVariables(vars map[string]string) error {
	if len(vars) > maxVariables {
		return dErrors.New(dErrors.CodeValidation, "too many variables")
	}
	for k, v := range vars {
		if k == "" || len(k) > maxVariableKey {
			return dErrors.New(dErrors.CodeValidation, "variable names must be 1-64 characters")
		}
		if len(v) > maxVariableValue {
			return dErrors.New(dErrors.CodeValidation, "variable "+k+" is too long")
		}
	}
	return nil
}

func translate(err error, op string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "document changed concurrently")
	}
	return storageError(err, op)
}

func storageError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeStorage, op+" timed out")
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, op+" failed")
}
