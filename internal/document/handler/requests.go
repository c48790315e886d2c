package handler

import (
	"strings"
	"time"

	"signet/internal/document/models"
	"signet/internal/document/template"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

type DraftDocumentRequest struct {
	TypeCode    string            `json:"type_code"`
	OwnerUserID string            `json:"owner_user_id,omitempty"`
	Variables   map[string]string `json:"variables"`

	typeCode models.DocumentType
	owner    id.UserID
}

func (r *DraftDocumentRequest) Validate() error {
	typeCode, err := models.ParseDocumentType(r.TypeCode)
	if err != nil {
		return err
	}
	r.typeCode = typeCode
	if strings.TrimSpace(r.OwnerUserID) != "" {
		owner, err := id.ParseUserID(strings.TrimSpace(r.OwnerUserID))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "owner_user_id must be a UUID")
		}
		r.owner = owner
	}
	return nil
}

type SignDocumentRequest struct {
	SignerName  string `json:"signer_name"`
	SignerTitle string `json:"signer_title,omitempty"`
	SignerEmail string `json:"signer_email"`
	OTPCode     string `json:"otp_code,omitempty"`
}

func (r *SignDocumentRequest) Validate() error {
	if strings.TrimSpace(r.SignerName) == "" {
		return dErrors.New(dErrors.CodeValidation, "signer_name is required")
	}
	if strings.TrimSpace(r.SignerEmail) == "" {
		return dErrors.New(dErrors.CodeValidation, "signer_email is required")
	}
	return nil
}

func (r *SignDocumentRequest) signer() models.SignerInfo {
	return models.SignerInfo{
		Name:    r.SignerName,
		Title:   r.SignerTitle,
		Email:   r.SignerEmail,
		OTPCode: r.OTPCode,
	}
}

type DraftDocumentResponse struct {
	DocumentID    id.DocumentID `json:"document_id"`
	CanonicalHash string        `json:"canonical_hash"`
	Status        models.Status `json:"status"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

type SigningStartedResponse struct {
	DocumentID   id.DocumentID `json:"document_id"`
	Status       models.Status `json:"status"`
	OTPExpiresAt time.Time     `json:"otp_expires_at"`
}

type SignDocumentResponse struct {
	DocumentID        id.DocumentID             `json:"document_id"`
	Status            models.Status             `json:"status"`
	SignedAt          *time.Time                `json:"signed_at,omitempty"`
	SignatureEvidence *models.SignatureEvidence `json:"signature_evidence"`
}

type TemplateSummary struct {
	TypeCode models.DocumentType `json:"type_code"`
	Title    string              `json:"title,omitempty"`
	Version  string              `json:"version,omitempty"`
	ValidFor string              `json:"valid_for,omitempty"`
}

type TemplatesResponse struct {
	Templates []TemplateSummary `json:"templates"`
}

func toTemplatesResponse(templates []template.Template) TemplatesResponse {
	out := make([]TemplateSummary, 0, len(templates))
	for _, t := range templates {
		summary := TemplateSummary{TypeCode: t.TypeCode, Title: t.Title, Version: t.Version}
		if t.ValidFor > 0 {
			summary.ValidFor = t.ValidFor.String()
		}
		out = append(out, summary)
	}
	return TemplatesResponse{Templates: out}
}
