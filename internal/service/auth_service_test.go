package service

import (
	"livesession/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_UserTokenRoundTrip(t *testing.T) {
	svc := NewAuthService("secret")

	token, err := svc.IssueUserToken("u-1", "Ada", model.UserTeacher, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateUserToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "Ada", claims.DisplayName)
	assert.Equal(t, model.UserTeacher, claims.Role)
}

func TestAuthService_TokensAreNotInterchangeable(t *testing.T) {
	svc := NewAuthService("secret")

	join, err := svc.GenerateJoinToken("s-1", "u-1", model.RoleViewer)
	require.NoError(t, err)
	_, err = svc.ValidateUserToken(join)
	assert.ErrorIs(t, err, ErrInvalidToken)

	user, err := svc.IssueUserToken("u-1", "Ada", model.UserStudent, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateJoinToken(user)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := svc.ValidateJoinToken(join)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.Equal(t, model.RoleViewer, claims.Role)
}

func TestAuthService_RejectsForeignAndExpired(t *testing.T) {
	svc := NewAuthService("secret")
	other := NewAuthService("other")

	token, err := other.IssueUserToken("u-1", "", model.UserStudent, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateUserToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := svc.IssueUserToken("u-1", "", model.UserStudent, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateUserToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateUserToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
