// Package otp issues and verifies one-time signing codes bound to a document.
// Only a bcrypt hash of each code is stored.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/sentinel"
	"signet/pkg/requestcontext"
)

const (
	codeDigits = 6
	defaultTTL = 10 * time.Minute
)

// Challenge is an outstanding code for one document. A newer challenge
// replaces the previous one.
type Challenge struct {
	DocumentID id.DocumentID `json:"document_id"`
	CodeHash   string        `json:"code_hash"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Store holds at most one challenge per document. Get returns
// sentinel.ErrNotFound when there is none.
type Store interface {
	Put(ctx context.Context, c Challenge) error
	Get(ctx context.Context, docID id.DocumentID) (*Challenge, error)
	Delete(ctx context.Context, docID id.DocumentID) error
}

type Service struct {
	store Store
	ttl   time.Duration
	cost  int
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, ttl: defaultTTL, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh code for docID and returns it in clear. Delivery is
// the caller's job.
func (s *Service) Issue(ctx context.Context, docID id.DocumentID) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", fmt.Errorf("could not hash otp: %w", err)
	}
	err = s.store.Put(ctx, Challenge{
		DocumentID: docID,
		CodeHash:   string(hash),
		ExpiresAt:  requestcontext.Now(ctx).Add(s.ttl),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStorage, "failed to store otp challenge")
	}
	return code, nil
}

// Verify checks code against the outstanding challenge and consumes it on
// success. Wrong, expired or missing codes are validation errors.
func (s *Service) Verify(ctx context.Context, docID id.DocumentID, code string) error {
	if code == "" {
		return dErrors.New(dErrors.CodeValidation, "otp_code is required")
	}
	challenge, err := s.store.Get(ctx, docID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeValidation, "no outstanding otp challenge for document")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load otp challenge")
	}
	if !requestcontext.Now(ctx).Before(challenge.ExpiresAt) {
		_ = s.store.Delete(ctx, docID)
		return dErrors.New(dErrors.CodeValidation, "otp code has expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeValidation, "invalid otp code")
		}
		return fmt.Errorf("could not verify otp: %w", err)
	}
	if err := s.store.Delete(ctx, docID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to consume otp challenge")
	}
	return nil
}

// Last4 returns the trailing four characters kept in signature evidence.
func Last4(code string) string {
	if len(code) <= 4 {
		return code
	}
	return code[len(code)-4:]
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("could not generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
