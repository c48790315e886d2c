package models

import (
	"strings"
	"time"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

// DocumentType is a legal document type code, e.g. "NDA".
type DocumentType string

func (t DocumentType) String() string { return string(t) }

// ParseDocumentType normalizes a type code from external input.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "type_code is required")
	}
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeValidation, "type_code must be at most 64 characters")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return "", dErrors.New(dErrors.CodeValidation, "type_code may only contain A-Z, 0-9 and _")
		}
	}
	return DocumentType(s), nil
}

// Status is the lifecycle state of a document instance.
type Status string

const (
	StatusDrafted Status = "DRAFTED"
	StatusSigning Status = "SIGNING"
	StatusSigned  Status = "SIGNED"
	StatusExpired Status = "EXPIRED"
)

// Pending reports whether the document can still be signed or expired.
func (s Status) Pending() bool {
	return s == StatusDrafted || s == StatusSigning
}

// CanTransition reports whether from → to is a legal lifecycle move. SIGNED
// and EXPIRED are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDrafted:
		return to == StatusSigning || to == StatusSigned || to == StatusExpired
	case StatusSigning:
		return to == StatusSigned || to == StatusExpired
	default:
		return false
	}
}

// Document is a generated instance of a template for one owner.
type Document struct {
	ID              id.DocumentID      `json:"id"`
	TypeCode        DocumentType       `json:"type_code"`
	OwnerUserID     id.UserID          `json:"owner_user_id"`
	Variables       map[string]string  `json:"variables"`
	CanonicalHash   string             `json:"canonical_hash"`
	Status          Status             `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	SignedAt        *time.Time         `json:"signed_at,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	Evidence        *SignatureEvidence `json:"signature_evidence,omitempty"`
	TextRef         string             `json:"text_ref"`
	TemplateVersion string             `json:"template_version,omitempty"`
}

// ExpiredAt reports whether the validity window has closed at now.
func (d *Document) ExpiredAt(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// Counts reports whether the document satisfies a requirement at now: it must
// be signed and still inside its validity window.
func (d *Document) Counts(now time.Time) bool {
	return d.Status == StatusSigned && !d.ExpiredAt(now)
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.Variables != nil {
		out.Variables = make(map[string]string, len(d.Variables))
		for k, v := range d.Variables {
			out.Variables[k] = v
		}
	}
	if d.SignedAt != nil {
		t := *d.SignedAt
		out.SignedAt = &t
	}
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		out.ExpiresAt = &t
	}
	if d.Evidence != nil {
		ev := *d.Evidence
		out.Evidence = &ev
	}
	return &out
}

// SignatureEvidence is the record captured when a document is signed.
type SignatureEvidence struct {
	SignerName            string    `json:"signer_name"`
	SignerTitle           string    `json:"signer_title,omitempty"`
	SignerEmail           string    `json:"signer_email"`
	IP                    string    `json:"ip"`
	UserAgent             string    `json:"user_agent"`
	Device                string    `json:"device,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
	OTPLast4              string    `json:"otp_last4,omitempty"`
	DocumentHashAtSigning string    `json:"document_hash_at_signing"`
}

// NewDocument is the input to Store.Create. The store assigns ID, status and
// creation time.
type NewDocument struct {
	TypeCode        DocumentType
	OwnerUserID     id.UserID
	Variables       map[string]string
	Text            string
	CanonicalHash   string
	ExpiresAt       *time.Time
	TemplateVersion string
	CreatedAt       time.Time
}

// StatusUpdate is a compare-and-set on a document's status. Evidence is
// required when To is SIGNED.
type StatusUpdate struct {
	ID       id.DocumentID
	From     Status
	To       Status
	Evidence *SignatureEvidence
	At       time.Time
}

// SignerInfo is the caller-supplied half of signature evidence.
type SignerInfo struct {
	Name    string
	Title   string
	Email   string
	OTPCode string
}
