package tenancy

import (
	"context"
	"slices"
)

// Provider returns the authoritative list of tenant identifiers.
// Order is significant: iteration follows it as returned.
type Provider interface {
	Tenants(ctx context.Context) ([]string, error)
}

// ProviderFunc adapts an ordinary function to a Provider.
// It is invoked on every registry lookup, so changes in the
// underlying source are visible immediately.
type ProviderFunc func(ctx context.Context) ([]string, error)

func (f ProviderFunc) Tenants(ctx context.Context) ([]string, error) {
	return f(ctx)
}

type staticProvider []string

// StaticTenants returns a Provider over a fixed list of identifiers.
func StaticTenants(ids ...string) Provider {
	return staticProvider(slices.Clone(ids))
}

func (p staticProvider) Tenants(context.Context) ([]string, error) {
	return slices.Clone(p), nil
}

// Registry validates identifiers against a Provider. Nothing is cached.
type Registry struct {
	provider Provider
}

func NewRegistry(p Provider) *Registry {
	return &Registry{provider: p}
}

// AllTenants evaluates the provider. Provider errors are returned unmodified.
func (r *Registry) AllTenants(ctx context.Context) ([]string, error) {
	return r.provider.Tenants(ctx)
}

// Exists reports whether id is a member of the current snapshot.
// Comparison is byte-exact; the empty id never exists.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ids, err := r.AllTenants(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// Validate returns ErrTenantNotFound when id is not registered.
func (r *Registry) Validate(ctx context.Context, id string) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return tenantNotFound(id)
	}
	return nil
}
