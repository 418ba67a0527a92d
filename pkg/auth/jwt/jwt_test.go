package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/model"
)

var hmacSecret = []byte("test-secret")

func signHMAC(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(hmacSecret)
	require.NoError(t, err)
	return signed
}

func TestProvider_HMACValidTokenGrantsPermission(t *testing.T) {
	t.Parallel()

	p := NewHMAC(hmacSecret)
	token := signHMAC(t, Claims{
		UserID:     "user-1",
		Permission: string(model.PermissionWrite),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	verdict, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, "user-1", verdict.UserID)
	assert.Equal(t, model.PermissionWrite, verdict.Permission)
}

func TestProvider_HMACExpiredTokenIsRejected(t *testing.T) {
	t.Parallel()

	p := NewHMAC(hmacSecret)
	token := signHMAC(t, Claims{
		UserID:     "user-1",
		Permission: string(model.PermissionRead),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	verdict, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, verdict.OK)
}

func TestProvider_HMACWrongSecretIsRejected(t *testing.T) {
	t.Parallel()

	signer := NewHMAC(hmacSecret)
	_ = signer
	token := signHMAC(t, Claims{UserID: "user-1", Permission: string(model.PermissionRead)})

	verifier := NewHMAC([]byte("different-secret"))
	verdict, err := verifier.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, verdict.OK)
}

func TestProvider_InvalidPermissionClaimIsRejected(t *testing.T) {
	t.Parallel()

	p := NewHMAC(hmacSecret)
	token := signHMAC(t, Claims{UserID: "user-1", Permission: "admin"})

	verdict, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.Equal(t, "invalid permission claim", verdict.Reason)
}

func TestProvider_MalformedTokenIsRejected(t *testing.T) {
	t.Parallel()

	p := NewHMAC(hmacSecret)
	verdict, err := p.Authenticate(context.Background(), "not-a-jwt")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
}

func TestProvider_RSAMethodRejectsHMACToken(t *testing.T) {
	t.Parallel()

	p := NewRSA(nil)
	token := signHMAC(t, Claims{UserID: "user-1", Permission: string(model.PermissionRead)})

	verdict, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, verdict.OK, "an RSA-configured provider must reject HMAC-signed tokens")
}
