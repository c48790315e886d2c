package handler

import (
	"strings"

	docmodels "signet/internal/document/models"
	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

type UpgradeRoleRequest struct {
	Role string `json:"role"`
}

func (r *UpgradeRoleRequest) Validate() error {
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
	if r.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	if len(r.Role) > 64 {
		return dErrors.New(dErrors.CodeValidation, "role must be at most 64 characters")
	}
	return nil
}

type UpgradeRoleResponse struct {
	UserID               id.UserID                `json:"user_id"`
	PreviousLevel        string                   `json:"previous_level"`
	RBACLevel            string                   `json:"rbac_level"`
	SatisfiedRequirement []docmodels.DocumentType `json:"satisfied_document_types"`
}

type RoleResponse struct {
	UserID      id.UserID `json:"user_id"`
	RBACLevel   string    `json:"rbac_level"`
	Permissions []string  `json:"permissions"`
	// Upgrades lists self-service levels above the current one.
	Upgrades []string `json:"available_upgrades"`
}
