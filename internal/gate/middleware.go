package gate

import (
	"net/http"

	"signet/internal/compliance/models"
	docmodels "signet/internal/document/models"
	"signet/pkg/platform/httputil"
	"signet/pkg/requestcontext"
)

// RejectionResponse is the 403 body for a denied request.
type RejectionResponse struct {
	Error                 string                   `json:"error"`
	ErrorDescription      string                   `json:"error_description"`
	RequiredPermission    string                   `json:"required_permission,omitempty"`
	Target                *models.Target           `json:"target,omitempty"`
	MissingDocumentTypes  []docmodels.DocumentType `json:"missing_document_types,omitempty"`
	RequiredDocumentTypes []docmodels.DocumentType `json:"required_document_types,omitempty"`
}

// Middleware gates a route on permission and target for the authenticated
// user. It must run after the auth middleware.
func (g *Gate) Middleware(permission string, target models.Target) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			grant, err := g.Check(ctx, Request{
				UserID:     requestcontext.UserID(ctx),
				Permission: permission,
				Target:     target,
			})
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withGrant(ctx, grant)))
		})
	}
}

// WriteError writes a structured 403 for rejections and the standard error
// body for anything else.
func WriteError(w http.ResponseWriter, err error) {
	rej, ok := AsRejection(err)
	if !ok {
		httputil.WriteError(w, err)
		return
	}
	resp := RejectionResponse{
		Error:            string(rej.Kind),
		ErrorDescription: rej.Error(),
	}
	switch rej.Kind {
	case KindForbidden:
		resp.RequiredPermission = rej.Permission
	case KindComplianceRequired:
		target := rej.Target
		resp.Target = &target
		resp.MissingDocumentTypes = rej.Missing
		resp.RequiredDocumentTypes = rej.Required
	}
	httputil.WriteJSON(w, http.StatusForbidden, resp)
}
