package tenancy

import "context"

// ColumnAdapter isolates tenants through a discriminator column.
// It performs no I/O: activation only records the tenant in the flow slot,
// and the data-access layer reads it back through Current to filter
// queries and stamp inserts.
type ColumnAdapter struct {
	*engine
}

func newColumnAdapter(cfg Config, global *flow) *ColumnAdapter {
	a := &ColumnAdapter{}
	a.engine = newEngine(cfg, global, columnStrategy{})
	return a
}

// Column returns the discriminator column name.
func (a *ColumnAdapter) Column() string {
	return a.cfg.TenantColumn
}

type columnStrategy struct{}

func (columnStrategy) activate(context.Context, *flow, string) error { return nil }
func (columnStrategy) deactivate(context.Context, *flow) error       { return nil }
