package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
	"signet/pkg/requestcontext"
)

func newService() (*Service, *InMemoryStore) {
	store := NewInMemoryStore()
	return NewService(store, WithCost(bcrypt.MinCost), WithTTL(5*time.Minute)), store
}

func TestIssueAndVerify(t *testing.T) {
	svc, store := newService()
	docID := id.NewDocumentID()

	code, err := svc.Issue(context.Background(), docID)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	stored, err := store.Get(context.Background(), docID)
	require.NoError(t, err)
	assert.NotContains(t, stored.CodeHash, code)

	require.NoError(t, svc.Verify(context.Background(), docID, code))

	err = svc.Verify(context.Background(), docID, code)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "codes are single use")
}

func TestVerifyRejections(t *testing.T) {
	svc, _ := newService()
	docID := id.NewDocumentID()
	issuedAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), issuedAt)

	code, err := svc.Issue(ctx, docID)
	require.NoError(t, err)

	t.Run("empty code", func(t *testing.T) {
		assert.True(t, dErrors.HasCode(svc.Verify(ctx, docID, ""), dErrors.CodeValidation))
	})

	t.Run("wrong code", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		assert.True(t, dErrors.HasCode(svc.Verify(ctx, docID, wrong), dErrors.CodeValidation))
	})

	t.Run("other document", func(t *testing.T) {
		assert.True(t, dErrors.HasCode(svc.Verify(ctx, id.NewDocumentID(), code), dErrors.CodeValidation))
	})

	t.Run("expired", func(t *testing.T) {
		later := requestcontext.WithTime(context.Background(), issuedAt.Add(6*time.Minute))
		assert.True(t, dErrors.HasCode(svc.Verify(later, docID, code), dErrors.CodeValidation))
	})
}

func TestReissueReplacesPreviousCode(t *testing.T) {
	svc, _ := newService()
	docID := id.NewDocumentID()

	first, err := svc.Issue(context.Background(), docID)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), docID)
	require.NoError(t, err)

	if first != second {
		assert.Error(t, svc.Verify(context.Background(), docID, first))
	}
	assert.NoError(t, svc.Verify(context.Background(), docID, second))
}

func TestLast4(t *testing.T) {
	assert.Equal(t, "3456", Last4("123456"))
	assert.Equal(t, "12", Last4("12"))
}
