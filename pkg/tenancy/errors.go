package tenancy

import (
	"errors"
	"fmt"
)

// ErrTenant is the root of every error produced by this package.
// Use errors.Is(err, ErrTenant) for catch-all handling.
var ErrTenant = errors.New("tenancy")

var (
	// ErrConfiguration is returned for invalid or missing configuration.
	ErrConfiguration = fmt.Errorf("%w: configuration error", ErrTenant)

	// ErrNotConfigured is returned by every Manager operation called before Configure.
	ErrNotConfigured = fmt.Errorf("%w: not configured", ErrConfiguration)

	// ErrTenantNotFound is returned when an identifier is not in the registry.
	ErrTenantNotFound = fmt.Errorf("%w: tenant not found", ErrTenant)

	// ErrTenantContextMissing is returned when an active tenant is required but none is set.
	ErrTenantContextMissing = fmt.Errorf("%w: no tenant in context", ErrTenant)

	// ErrTenantImmutable is returned on an attempt to change a persisted discriminator value.
	ErrTenantImmutable = fmt.Errorf("%w: tenant discriminator is immutable", ErrTenant)

	// ErrSchemaNotFound is returned when a tenant namespace does not exist in storage.
	ErrSchemaNotFound = fmt.Errorf("%w: schema not found", ErrTenant)
)

func tenantNotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrTenantNotFound, id)
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
