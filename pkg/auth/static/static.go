// Package static is a fixed token->identity map provider, useful for
// local development and tests.
package static

import (
	"context"
	"sync"

	"github.com/foundrysync/mimic/pkg/auth"
	"github.com/foundrysync/mimic/pkg/model"
)

// Identity is one entry in the static token table.
type Identity struct {
	UserID     string
	Permission model.Permission
}

// Provider verifies tokens against a fixed, in-memory map.
type Provider struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

// New builds a Provider from a token->Identity table.
func New(tokens map[string]Identity) *Provider {
	clone := make(map[string]Identity, len(tokens))
	for k, v := range tokens {
		clone[k] = v
	}
	return &Provider{tokens: clone}
}

// Set adds or replaces the identity for token.
func (p *Provider) Set(token string, id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = id
}

func (p *Provider) Authenticate(_ context.Context, token string) (auth.Verdict, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.tokens[token]
	if !ok {
		return auth.Verdict{OK: false, Reason: "unknown token"}, nil
	}
	return auth.Verdict{OK: true, UserID: id.UserID, Permission: id.Permission}, nil
}

var _ auth.Provider = (*Provider)(nil)
