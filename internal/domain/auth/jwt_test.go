package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "almacen/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("s3cret"))

	token, expires, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID: "sup-1",
		Email:  "sup@almacen.local",
		Role:   "supervisor",
	})
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", user.UserID)
	assert.Equal(t, "supervisor", user.Role)
	assert.Equal(t, "sup@almacen.local", user.Email)
}

func TestJWTService_RejectsUnknownRole(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("s3cret"))

	_, _, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u1", Role: "root"})

	assert.Error(t, err)
}

func TestJWTService_RejectsForeignSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("one"))
	verifier := NewJWTService(DefaultJWTConfig("two"))

	token, _, err := issuer.GenerateAccessToken(appctx.UserContext{UserID: "u1", Role: "almacen"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: "s3cret", AccessTokenTTL: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u1", Role: "compras"})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)

	assert.Error(t, err)
}
