package tenant

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// HeaderName is the header read by the header resolver.
const HeaderName = "X-Tenant"

// Baseline exclusions, always merged with configured ones at resolution time.
var (
	baselineSubdomains = []string{"www"}
	baselinePaths      = []string{"api", "admin", "assets", "images", "stylesheets", "javascripts", "rails"}
)

// Resolver extracts a tenant identifier from a request.
// An empty string means no tenant was detected.
type Resolver func(r *http.Request) (string, error)

// NewSubdomainResolver takes the first label of hosts with at least three
// labels ("acme.app.com" -> "acme"). Excluded labels resolve to no tenant.
func NewSubdomainResolver(excluded ...string) Resolver {
	excluded = slices.Clone(excluded)
	return func(r *http.Request) (string, error) {
		labels := strings.Split(hostname(r), ".")
		if len(labels) < 3 {
			return "", nil
		}
		sub := labels[0]
		if slices.Contains(baselineSubdomains, sub) || slices.Contains(excluded, sub) {
			return "", nil
		}
		return sub, nil
	}
}

// NewDomainResolver uses the whole host name, without port, as the tenant id.
func NewDomainResolver() Resolver {
	return func(r *http.Request) (string, error) {
		return hostname(r), nil
	}
}

// NewHeaderResolver reads the tenant id from the X-Tenant header.
func NewHeaderResolver() Resolver {
	return func(r *http.Request) (string, error) {
		return r.Header.Get(HeaderName), nil
	}
}

// NewPathResolver uses the first non-empty path segment
// ("/acme/invoices" -> "acme"). Excluded segments resolve to no tenant.
func NewPathResolver(excluded ...string) Resolver {
	excluded = slices.Clone(excluded)
	return func(r *http.Request) (string, error) {
		for seg := range strings.SplitSeq(r.URL.Path, "/") {
			if seg == "" {
				continue
			}
			if slices.Contains(baselinePaths, seg) || slices.Contains(excluded, seg) {
				return "", nil
			}
			return seg, nil
		}
		return "", nil
	}
}

// NewResolver builds the resolver named by cfg.Elevator. Unknown names
// resolve every request to no tenant.
func NewResolver(cfg tenancy.Config) Resolver {
	switch cfg.Elevator {
	case tenancy.ElevatorSubdomain:
		return NewSubdomainResolver(cfg.ExcludedSubdomains...)
	case tenancy.ElevatorDomain:
		return NewDomainResolver()
	case tenancy.ElevatorHeader:
		return NewHeaderResolver()
	case tenancy.ElevatorPath:
		return NewPathResolver(cfg.ExcludedPaths...)
	case tenancy.ElevatorCustom:
		if cfg.CustomElevator != nil {
			return cfg.CustomElevator
		}
	}
	return noTenant
}

func noTenant(*http.Request) (string, error) { return "", nil }

// NewCompositeResolver tries resolvers in order and returns the first
// non-empty id. Errors are collected and returned only when nothing matched.
func NewCompositeResolver(resolvers ...Resolver) Resolver {
	resolvers = slices.Clone(resolvers)
	return func(r *http.Request) (string, error) {
		var errs []error
		for _, resolve := range resolvers {
			id, err := resolve(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if id != "" {
				return id, nil
			}
		}
		if len(errs) > 0 {
			return "", fmt.Errorf("composite resolver: %w", errors.Join(errs...))
		}
		return "", nil
	}
}

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}
