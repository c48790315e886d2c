package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")

func TestIssueAndValidate(t *testing.T) {
	userID := id.UserID(uuid.New())
	token, err := jwtService.IssueToken(userID, time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestValidateToken_Rejections(t *testing.T) {
	userID := id.UserID(uuid.New())

	t.Run("garbage token", func(t *testing.T) {
		_, err := jwtService.ValidateToken("invalid-token-string")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := jwtService.IssueToken(userID, -time.Hour)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewJWTService("other-key", "test-issuer", "test-audience")
		token, err := other.IssueToken(userID, time.Hour)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "test-issuer", "someone-else")
		token, err := other.IssueToken(userID, time.Hour)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestAdapterCarriesSubject(t *testing.T) {
	userID := id.UserID(uuid.New())
	token, err := jwtService.IssueToken(userID, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.NotEmpty(t, claims.JTI)
}
