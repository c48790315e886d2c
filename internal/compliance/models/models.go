package models

import (
	"strings"
	"time"

	docmodels "signet/internal/document/models"
	dErrors "signet/pkg/domain-errors"
)

// TargetKind says which requirement table a target code is looked up in.
type TargetKind string

const (
	KindRBACLevel    TargetKind = "rbacLevel"
	KindAction       TargetKind = "action"
	KindSecurityTier TargetKind = "securityTier"
)

func (k TargetKind) IsValid() bool {
	switch k {
	case KindRBACLevel, KindAction, KindSecurityTier:
		return true
	}
	return false
}

// Target is a typed requirement key, e.g. {rbacLevel, CONTRIBUTOR}.
type Target struct {
	Kind TargetKind `json:"kind"`
	Code string     `json:"code"`
}

func (t Target) String() string {
	return string(t.Kind) + ":" + t.Code
}

func RBACLevel(code string) Target    { return Target{Kind: KindRBACLevel, Code: code} }
func Action(code string) Target       { return Target{Kind: KindAction, Code: code} }
func SecurityTier(code string) Target { return Target{Kind: KindSecurityTier, Code: code} }

// ParseTarget builds a Target from external input. The kind must be one of
// the known kinds; the code is upper-cased. Unknown codes are not an error.
func ParseTarget(kind, code string) (Target, error) {
	k := TargetKind(strings.TrimSpace(kind))
	if !k.IsValid() {
		return Target{}, dErrors.New(dErrors.CodeValidation, "target kind must be one of rbacLevel, action, securityTier")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Target{}, dErrors.New(dErrors.CodeValidation, "target code is required")
	}
	if len(code) > 64 {
		return Target{}, dErrors.New(dErrors.CodeValidation, "target code must be at most 64 characters")
	}
	return Target{Kind: k, Code: code}, nil
}

// Result is a compliance verdict. It is computed per query and never
// persisted. Slices are never nil so they encode as [].
type Result struct {
	Target                 Target                   `json:"target"`
	Compliant              bool                     `json:"compliant"`
	RequiredDocumentTypes  []docmodels.DocumentType `json:"required_document_types"`
	CompliantDocumentTypes []docmodels.DocumentType `json:"compliant_document_types"`
	MissingDocumentTypes   []docmodels.DocumentType `json:"missing_document_types"`
	EvaluatedAt            time.Time                `json:"evaluated_at"`
}

// TierDescriptor describes a security tier. Controls are informational and
// enforced elsewhere; only RequiredDocumentTypes gates access here.
type TierDescriptor struct {
	TierCode              string                   `json:"tier_code"`
	DisplayName           string                   `json:"display_name"`
	RequiredDocumentTypes []docmodels.DocumentType `json:"required_document_types"`
	Controls              []string                 `json:"controls"`
}
