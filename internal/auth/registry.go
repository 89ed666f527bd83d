package auth

import (
	"context"
	"fmt"

	"github.com/Dan9191/transaction-service/internal/models"
)

// Registry is an immutable set of clients indexed by API key
type Registry struct {
	byKey map[string]models.Client
}

// NewRegistry indexes clients. Empty or duplicate API keys are rejected.
func NewRegistry(clients []models.Client) (*Registry, error) {
	r := &Registry{byKey: make(map[string]models.Client, len(clients))}
	for _, c := range clients {
		if c.APIKey == "" {
			return nil, fmt.Errorf("client %q has no API key", c.Name)
		}
		if _, dup := r.byKey[c.APIKey]; dup {
			return nil, fmt.Errorf("duplicate API key for client %q", c.Name)
		}
		r.byKey[c.APIKey] = c
	}
	return r, nil
}

// Lookup implements ClientLookup
func (r *Registry) Lookup(apiKey string) (models.Client, bool) {
	c, ok := r.byKey[apiKey]
	return c, ok
}

type principalKey struct{}

// WithPrincipal attaches p to ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by WithPrincipal
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
