package testutil

import (
	"context"
	"net/http"
	"time"

	id "signet/pkg/domain"
	"signet/pkg/requestcontext"
)

// WithUserID simulates the auth middleware for an authenticated request.
// Invalid IDs leave the request unauthenticated.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}

// WithClient injects the client metadata the signature processor records.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// UserContext returns a background context carrying userID.
func UserContext(userID id.UserID) context.Context {
	return requestcontext.WithUserID(context.Background(), userID)
}
