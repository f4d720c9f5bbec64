// Package tenant connects HTTP requests to the tenancy manager.
//
// A Resolver extracts a tenant identifier from a request. Built-in
// resolvers cover the subdomain, the full domain, the X-Tenant header and
// the first path segment. NewResolver picks one from the manager's
// configured elevator; unknown elevator names never detect a tenant.
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Use(tenant.Middleware(manager, tenant.WithSkipPaths("/health")))
//	r.With(tenant.RequireTenant(manager, nil)).Get("/invoices", listInvoices)
//
// The middleware opens a tenancy flow per request, validates the resolved
// id against the registry and runs the handler inside Manager.Scoped. With
// RequireTenant configured, unknown tenants map to 404 and missing tenants
// to 400 through DefaultErrorHandler.
//
// The tenant that was active when the request arrived is always restored,
// so no request leaves tenant state behind.
package tenant
