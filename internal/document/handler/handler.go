package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"signet/internal/document/models"
	"signet/internal/document/service"
	"signet/internal/document/template"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/httputil"
	"signet/pkg/requestcontext"
)

const (
	// PermissionDraftAny allows drafting a document owned by another user.
	PermissionDraftAny = "documents:draft_any"
	// PermissionReadAny allows reading another user's documents. Starting
	// or completing a signature is always limited to the owner.
	PermissionReadAny = "documents:read_any"
)

// Service is the drafting and reading side of the document module.
type Service interface {
	Draft(ctx context.Context, req service.DraftRequest) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Text(ctx context.Context, docID id.DocumentID) (string, error)
	Templates() []template.Template
	BeginSigning(ctx context.Context, docID id.DocumentID) (*service.SigningStarted, error)
}

type Signer interface {
	Sign(ctx context.Context, docID id.DocumentID, signer models.SignerInfo) (*models.Document, error)
}

type Permissions interface {
	HasPermission(ctx context.Context, userID id.UserID, permission string) (bool, error)
}

// Handler serves the document and template routes. Authentication is applied
// by the router it is registered on; ownership is checked here. A document
// owned by someone else reads as not found.
type Handler struct {
	documents   Service
	signer      Signer
	permissions Permissions
	logger      *slog.Logger
}

func New(documents Service, signer Signer, permissions Permissions, logger *slog.Logger) *Handler {
	return &Handler{documents: documents, signer: signer, permissions: permissions, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.handleDraft)
	r.Get("/documents/{id}", h.handleGet)
	r.Get("/documents/{id}/text", h.handleText)
	r.Post("/documents/{id}/otp", h.handleBeginSigning)
	r.Post("/documents/{id}/sign", h.handleSign)
	r.Get("/templates", h.handleTemplates)
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.UserID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[DraftDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	owner := caller
	if !req.owner.IsNil() && req.owner != caller {
		allowed, err := h.permissions.HasPermission(ctx, caller, PermissionDraftAny)
		if err != nil {
			h.writeFailure(ctx, w, "draft document", dErrors.Wrap(err, dErrors.CodeStorage, "permission check failed"))
			return
		}
		if !allowed {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "drafting for another user requires "+PermissionDraftAny))
			return
		}
		owner = req.owner
	}

	doc, err := h.documents.Draft(ctx, service.DraftRequest{
		TypeCode:    req.typeCode,
		OwnerUserID: owner,
		Variables:   req.Variables,
	})
	if err != nil {
		h.writeFailure(ctx, w, "draft document", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, DraftDocumentResponse{
		DocumentID:    doc.ID,
		CanonicalHash: doc.CanonicalHash,
		Status:        doc.Status,
		ExpiresAt:     doc.ExpiresAt,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, ok := h.authorize(ctx, w, docID, true)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(ctx, w, docID, true); !ok {
		return
	}
	text, err := h.documents.Text(ctx, docID)
	if err != nil {
		h.writeFailure(ctx, w, "get document text", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *Handler) handleBeginSigning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(ctx, w, docID, false); !ok {
		return
	}
	started, err := h.documents.BeginSigning(ctx, docID)
	if err != nil {
		h.writeFailure(ctx, w, "begin signing", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SigningStartedResponse{
		DocumentID:   started.DocumentID,
		Status:       started.Status,
		OTPExpiresAt: started.OTPExpiresAt,
	})
}

// handleSign never retries; on conflict the client re-reads the document.
func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SignDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if _, ok := h.authorize(ctx, w, docID, false); !ok {
		return
	}
	doc, err := h.signer.Sign(ctx, docID, req.signer())
	if err != nil {
		h.writeFailure(ctx, w, "sign document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SignDocumentResponse{
		DocumentID:        doc.ID,
		Status:            doc.Status,
		SignedAt:          doc.SignedAt,
		SignatureEvidence: doc.Evidence,
	})
}

func (h *Handler) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toTemplatesResponse(h.documents.Templates()))
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid document id"))
		return id.DocumentID{}, false
	}
	return docID, true
}

// authorize loads docID and lets the caller through when they own it, or when
// readAny is set and they hold PermissionReadAny. Anything else is written as
// not found so callers cannot tell which document IDs exist.
func (h *Handler) authorize(ctx context.Context, w http.ResponseWriter, docID id.DocumentID, readAny bool) (*models.Document, bool) {
	caller := requestcontext.UserID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	doc, err := h.documents.Get(ctx, docID)
	if err != nil {
		h.writeFailure(ctx, w, "load document", err)
		return nil, false
	}
	if doc.OwnerUserID == caller {
		return doc, true
	}
	if readAny {
		allowed, err := h.permissions.HasPermission(ctx, caller, PermissionReadAny)
		if err != nil {
			h.writeFailure(ctx, w, "load document", dErrors.Wrap(err, dErrors.CodeStorage, "permission check failed"))
			return nil, false
		}
		if allowed {
			return doc, true
		}
	}
	h.logger.WarnContext(ctx, "document access denied",
		"document_id", docID,
		"user_id", caller,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document not found"))
	return nil, false
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := []any{
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeStorage, dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "failed to "+op, attrs...)
	default:
		h.logger.WarnContext(ctx, op+" rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
