package admin

import (
	"strings"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

type AssignRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`

	userID id.UserID
}

func (r *AssignRoleRequest) Validate() error {
	userID, err := id.ParseUserID(strings.TrimSpace(r.UserID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "user_id must be a UUID")
	}
	r.userID = userID
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
	if r.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	return nil
}
