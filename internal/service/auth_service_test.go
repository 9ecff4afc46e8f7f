package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "service-order"})
	actor := models.Actor{UserID: "u-1", SectorID: "sec-1", DepartmentID: "dep-1", Role: models.RoleSupervisor}

	token, expires, err := svc.IssueToken(actor, "u1@example.com")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, models.ActorFromClaims(claims))
	assert.Equal(t, "u1@example.com", claims.Email)
}

func TestAuthServiceRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(AuthConfig{AccessTokenSecret: "one"})
	verifier := NewAuthService(AuthConfig{AccessTokenSecret: "two"})

	token, _, err := issuer.IssueToken(models.Actor{UserID: "u-1", Role: models.RoleWorker}, "")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.IssueToken(models.Actor{UserID: "u-1", Role: models.RoleWorker}, "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceRejectsForeignIssuerAndAlgorithm(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "service-order"})
	other := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})

	token, _, err := other.IssueToken(models.Actor{UserID: "u-1", Role: models.RoleWorker}, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u-1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	assert.Error(t, err)
}
