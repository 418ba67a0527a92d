// Package jwt verifies tokens as signed JWTs carrying the user's id and
// permission in their claims.
package jwt

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foundrysync/mimic/pkg/auth"
	"github.com/foundrysync/mimic/pkg/model"
)

// Claims is the expected claim set. Permission must be "read" or "write".
type Claims struct {
	UserID     string `json:"uid"`
	Permission string `json:"perm"`
	jwt.RegisteredClaims
}

// Provider verifies tokens as JWTs signed with a static HMAC or RSA key.
type Provider struct {
	keyFunc jwt.Keyfunc
}

// NewHMAC builds a Provider that verifies HS256-signed tokens with secret.
func NewHMAC(secret []byte) *Provider {
	return &Provider{
		keyFunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		},
	}
}

// NewRSA builds a Provider that verifies RS256-signed tokens with pubKey.
func NewRSA(pubKey any) *Provider {
	return &Provider{
		keyFunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return pubKey, nil
		},
	}
}

func (p *Provider) Authenticate(_ context.Context, token string) (auth.Verdict, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, p.keyFunc)
	if err != nil || !parsed.Valid {
		return auth.Verdict{OK: false, Reason: "invalid token"}, nil
	}

	var perm model.Permission
	switch claims.Permission {
	case string(model.PermissionWrite):
		perm = model.PermissionWrite
	case string(model.PermissionRead):
		perm = model.PermissionRead
	default:
		return auth.Verdict{OK: false, Reason: "invalid permission claim"}, nil
	}

	return auth.Verdict{OK: true, UserID: claims.UserID, Permission: perm}, nil
}

var _ auth.Provider = (*Provider)(nil)
