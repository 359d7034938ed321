package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	userID := uuid.New()

	token, err := m.GenerateAccessToken(userID, RoleCustomer, "driver@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RoleCustomer, claims.Role)
}

func TestJWTManager_RejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	other := NewJWTManager("other-secret", time.Minute)

	foreign, err := other.GenerateAccessToken(uuid.New(), RoleCustomer, "")
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expiredMgr := NewJWTManager("secret", -time.Minute)
	expired, err := expiredMgr.GenerateAccessToken(uuid.New(), RoleCustomer, "")
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
