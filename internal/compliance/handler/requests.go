package handler

import (
	"strings"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

type TargetRequest struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}

type CheckComplianceRequest struct {
	UserID string        `json:"user_id,omitempty"`
	Target TargetRequest `json:"target"`

	userID id.UserID
	target models.Target
}

func (r *CheckComplianceRequest) Validate() error {
	target, err := models.ParseTarget(r.Target.Kind, r.Target.Code)
	if err != nil {
		return err
	}
	r.target = target
	if raw := strings.TrimSpace(r.UserID); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "user_id must be a UUID")
		}
		r.userID = userID
	}
	return nil
}

type RequirementsResponse struct {
	Target models.Target `json:"target"`
	// Known is false when the catalog has no entry for the target; the
	// requirement set is then empty.
	Known                 bool                     `json:"known"`
	RequiredDocumentTypes []docmodels.DocumentType `json:"required_document_types"`
}

type TiersResponse struct {
	Tiers []models.TierDescriptor `json:"tiers"`
}
