package admin

import (
	"time"

	"signet/pkg/platform/audit"
)

type AssignRoleResponse struct {
	UserID        string `json:"user_id"`
	PreviousLevel string `json:"previous_level"`
	RBACLevel     string `json:"rbac_level"`
}

// AuditEventResponse is the wire form of one audit event.
type AuditEventResponse struct {
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
	Subject     string    `json:"subject,omitempty"`
	Action      string    `json:"action"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

type AuditListResponse struct {
	Events []AuditEventResponse `json:"events"`
	Total  int                  `json:"total"`
}

type SweepResponse struct {
	Expired int       `json:"expired"`
	SweptAt time.Time `json:"swept_at"`
}

func toAuditList(events []audit.Event) AuditListResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			Category:    string(e.Category),
			Timestamp:   e.Timestamp,
			UserID:      e.UserID.String(),
			Subject:     e.Subject,
			Action:      e.Action,
			Decision:    e.Decision,
			Reason:      e.Reason,
			RequestID:   e.RequestID,
			ActorID:     e.ActorID,
			ContentHash: e.ContentHash,
		})
	}
	return AuditListResponse{Events: out, Total: len(out)}
}
