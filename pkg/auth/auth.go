// Package auth defines the pluggable token-verification contract used by
// the connection handler on every auth message.
package auth

import (
	"context"

	"github.com/foundrysync/mimic/pkg/model"
)

// Verdict is the outcome of verifying an opaque token.
type Verdict struct {
	OK         bool
	UserID     string
	Permission model.Permission
	Reason     string // set when OK is false
}

// Provider maps an opaque token to a Verdict. Implementations need only be
// deterministic for the same token within a session; re-auth is allowed.
type Provider interface {
	Authenticate(ctx context.Context, token string) (Verdict, error)
}
