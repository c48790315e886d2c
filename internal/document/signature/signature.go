// Package signature captures signatures on drafted documents.
package signature

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"signet/internal/document/events"
	"signet/internal/document/generator"
	"signet/internal/document/metrics"
	"signet/internal/document/models"
	"signet/internal/document/otp"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/audit"
	"signet/pkg/platform/sentinel"
	"signet/pkg/requestcontext"
)

// Store is the subset of the document store the processor needs.
type Store interface {
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Text(ctx context.Context, docID id.DocumentID) (string, error)
	UpdateStatus(ctx context.Context, upd models.StatusUpdate) (*models.Document, error)
}

type OTPVerifier interface {
	Verify(ctx context.Context, docID id.DocumentID, code string) error
}

// Invalidator drops cached compliance verdicts for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID id.UserID)
}

type Processor struct {
	store     Store
	otp       OTPVerifier
	publisher events.Publisher
	auditor   audit.Recorder
	cache     Invalidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithOTP makes a valid one-time code mandatory for every signature.
func WithOTP(v OTPVerifier) Option {
	return func(p *Processor) { p.otp = v }
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

func WithAuditor(a audit.Recorder) Option {
	return func(p *Processor) { p.auditor = a }
}

func WithInvalidator(c Invalidator) Option {
	return func(p *Processor) { p.cache = c }
}

func New(store Store, opts ...Option) *Processor {
	p := &Processor{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sign moves a DRAFTED or SIGNING document to SIGNED with evidence built from
// signer and the request context. Exactly one of several concurrent callers
// succeeds; the rest get CodeConflict. Sign never retries.
func (p *Processor) Sign(ctx context.Context, docID id.DocumentID, signer models.SignerInfo) (*models.Document, error) {
	signer, err := normalizeSigner(signer)
	if err != nil {
		p.metrics.IncrementSignature("rejected")
		return nil, err
	}

	doc, outcome, err := p.sign(ctx, docID, signer)
	if err != nil {
		p.metrics.IncrementSignature(outcome)
		p.recordFailure(ctx, docID, doc, err)
		return nil, err
	}

	p.metrics.IncrementSignature("signed")
	p.logger.InfoContext(ctx, "document signed",
		"document_id", doc.ID,
		"type_code", doc.TypeCode,
		"owner_user_id", doc.OwnerUserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if p.auditor != nil {
		p.auditor.Record(ctx, audit.Event{
			UserID:      doc.OwnerUserID,
			Subject:     doc.ID.String(),
			Action:      string(audit.EventDocumentSigned),
			Decision:    audit.Outcome(true),
			Reason:      string(doc.TypeCode),
			ContentHash: doc.CanonicalHash,
		})
	}
	if p.cache != nil {
		p.cache.Invalidate(ctx, doc.OwnerUserID)
	}
	if p.publisher != nil {
		p.publisher.PublishSigned(ctx, events.NewDocumentSigned(doc, requestcontext.RequestID(ctx)))
	}
	return doc, nil
}

// sign returns the loaded document alongside errors raised after loading so
// failures can be attributed to an owner. The string is the metrics outcome
// label for failures.
func (p *Processor) sign(ctx context.Context, docID id.DocumentID, signer models.SignerInfo) (*models.Document, string, error) {
	doc, err := p.store.Get(ctx, docID)
	if err != nil {
		err = translate(err, "load document")
		return nil, outcomeOf(err), err
	}

	switch doc.Status {
	case models.StatusSigned:
		return doc, "conflict", dErrors.New(dErrors.CodeConflict, "document is already signed")
	case models.StatusExpired:
		return doc, "expired", dErrors.New(dErrors.CodeExpired, "document has expired")
	}
	now := requestcontext.Now(ctx)
	if doc.ExpiredAt(now) {
		return doc, "expired", dErrors.New(dErrors.CodeExpired, "document expired before signing")
	}

	text, err := p.store.Text(ctx, docID)
	if err != nil {
		err = translate(err, "load document text")
		return doc, outcomeOf(err), err
	}
	if err := generator.Verify(text, doc.CanonicalHash); err != nil {
		p.logger.WarnContext(ctx, "document integrity check failed",
			"document_id", docID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return doc, "tampered", err
	}

	var otpLast4 string
	if p.otp != nil {
		if err := p.otp.Verify(ctx, docID, signer.OTPCode); err != nil {
			return doc, "otp_rejected", err
		}
		otpLast4 = otp.Last4(signer.OTPCode)
	}

	userAgent := requestcontext.UserAgent(ctx)
	evidence := &models.SignatureEvidence{
		SignerName:            signer.Name,
		SignerTitle:           signer.Title,
		SignerEmail:           signer.Email,
		IP:                    requestcontext.ClientIP(ctx),
		UserAgent:             userAgent,
		Device:                describeDevice(userAgent),
		Timestamp:             now.UTC(),
		OTPLast4:              otpLast4,
		DocumentHashAtSigning: doc.CanonicalHash,
	}

	signed, err := p.store.UpdateStatus(ctx, models.StatusUpdate{
		ID:       docID,
		From:     doc.Status,
		To:       models.StatusSigned,
		Evidence: evidence,
		At:       now,
	})
	if err != nil {
		err = translate(err, "update document status")
		return doc, outcomeOf(err), err
	}
	return signed, "", nil
}

func normalizeSigner(s models.SignerInfo) (models.SignerInfo, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Title = strings.TrimSpace(s.Title)
	s.Email = strings.TrimSpace(s.Email)
	s.OTPCode = strings.TrimSpace(s.OTPCode)

	if s.Name == "" {
		return s, dErrors.New(dErrors.CodeValidation, "signer_name is required")
	}
	if len(s.Name) > 200 || len(s.Title) > 200 {
		return s, dErrors.New(dErrors.CodeValidation, "signer fields must be at most 200 characters")
	}
	if s.Email == "" {
		return s, dErrors.New(dErrors.CodeValidation, "signer_email is required")
	}
	addr, err := mail.ParseAddress(s.Email)
	if err != nil || addr.Address != s.Email {
		return s, dErrors.New(dErrors.CodeValidation, "signer_email is not a valid address")
	}
	return s, nil
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "document changed while signing")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeStorage, op+" timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, op+" failed")
	}
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeExpired:
		return "expired"
	case dErrors.CodeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func (p *Processor) recordFailure(ctx context.Context, docID id.DocumentID, doc *models.Document, err error) {
	if p.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:   requestcontext.UserID(ctx),
		Subject:  docID.String(),
		Action:   string(audit.EventSignatureFailed),
		Decision: audit.Outcome(false),
		Reason:   string(dErrors.CodeOf(err)),
	}
	if doc != nil {
		event.UserID = doc.OwnerUserID
		event.ContentHash = doc.CanonicalHash
	}
	p.auditor.Record(ctx, event)
}
