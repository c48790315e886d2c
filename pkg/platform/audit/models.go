package audit

import (
	"context"
	"time"

	id "signet/pkg/domain"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: document
	// lifecycle changes and signatures. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers denied access and failed signature attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads and evaluations.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	// Subject is the entity acted on: a document ID, a target descriptor
	// ("action:EXPORT_DATA") or a role name.
	Subject  string
	Action   string
	Decision string
	Reason   string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
	// ActorID is set when someone other than UserID performed the action,
	// e.g. an admin upgrading a user's role.
	ActorID string
	// ContentHash is the canonical hash of the document involved, if any.
	ContentHash string
	IP          string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// Document lifecycle
	EventDocumentDrafted  AuditEvent = "document_drafted"
	EventSigningStarted   AuditEvent = "signing_started"
	EventOTPIssued        AuditEvent = "otp_issued"
	EventDocumentSigned   AuditEvent = "document_signed"
	EventSignatureFailed  AuditEvent = "signature_failed"
	EventDocumentExpired  AuditEvent = "document_expired"
	EventDocumentAccessed AuditEvent = "document_accessed"

	// Compliance and gating
	EventComplianceChecked AuditEvent = "compliance_checked"
	EventAccessDenied      AuditEvent = "access_denied"
	EventAccessGranted     AuditEvent = "access_granted"

	// RBAC
	EventRoleAssigned AuditEvent = "role_assigned"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentDrafted: CategoryCompliance,
	EventSigningStarted:  CategoryCompliance,
	EventDocumentSigned:  CategoryCompliance,
	EventDocumentExpired: CategoryCompliance,
	EventRoleAssigned:    CategoryCompliance,

	EventSignatureFailed: CategorySecurity,
	EventAccessDenied:    CategorySecurity,
	EventOTPIssued:       CategorySecurity,

	EventDocumentAccessed:  CategoryOperations,
	EventComplianceChecked: CategoryOperations,
	EventAccessGranted:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Recorder is the fire-and-forget audit collaborator. Implementations log and
// swallow failures; callers never see them.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Outcome renders a success flag as an event decision.
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
