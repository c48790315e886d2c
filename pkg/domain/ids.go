// Package domain holds typed identifiers shared across modules. Each ID wraps a
// UUID so a DocumentID can never be passed where a UserID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "signet/pkg/domain-errors"
)

type (
	UserID     uuid.UUID
	DocumentID uuid.UUID
)

func (u UserID) String() string     { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool        { return uuid.UUID(u) == uuid.Nil }
func (d DocumentID) String() string { return uuid.UUID(d).String() }
func (d DocumentID) IsNil() bool    { return uuid.UUID(d) == uuid.Nil }

// Text encoding keeps IDs as canonical UUID strings in JSON payloads.

func (u UserID) MarshalText() ([]byte, error) { return uuid.UUID(u).MarshalText() }

func (u *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (d DocumentID) MarshalText() ([]byte, error) { return uuid.UUID(d).MarshalText() }

func (d *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewDocumentID returns a fresh random document ID.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

// ParseUserID parses external input into a UserID.
// Errors: CodeInvalidInput for empty, malformed or nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseDocumentID parses external input into a DocumentID.
// Errors: CodeInvalidInput for empty, malformed or nil UUIDs.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document ID")
	return DocumentID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
