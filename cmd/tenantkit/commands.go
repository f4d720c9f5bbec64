package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

func listCmd(ctx context.Context, a *app, _ []string) error {
	ids, err := a.m.AllTenants(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(a.out, id)
	}
	return nil
}

type configView struct {
	Registry           string     `yaml:"registry"`
	Strategy           string     `yaml:"strategy"`
	TenantColumn       string     `yaml:"tenant_column,omitempty"`
	SchemaFormat       string     `yaml:"schema_format,omitempty"`
	PersistentSchemas  []string   `yaml:"persistent_schemas,omitempty"`
	DefaultSchema      string     `yaml:"default_schema,omitempty"`
	ExcludedEntities   []string   `yaml:"excluded_entities"`
	Elevator           string     `yaml:"elevator"`
	ExcludedSubdomains []string   `yaml:"excluded_subdomains,omitempty"`
	ExcludedPaths      []string   `yaml:"excluded_paths,omitempty"`
	RequireTenant      bool       `yaml:"require_tenant"`
	StrictImmutability bool       `yaml:"strict_immutability"`
	Audit              auditView  `yaml:"audit"`
	Callbacks          []string   `yaml:"callbacks,omitempty"`
	Tenants            tenantList `yaml:"tenants"`
}

type auditView struct {
	Access     bool `yaml:"access"`
	Violations bool `yaml:"violations"`
}

// tenantList renders a registry error in place of the ids.
type tenantList struct {
	ids []string
	err error
}

func (l tenantList) MarshalYAML() (any, error) {
	if l.err != nil {
		return "unavailable: " + l.err.Error(), nil
	}
	if l.ids == nil {
		return []string{}, nil
	}
	return l.ids, nil
}

func configCmd(ctx context.Context, a *app, _ []string) error {
	cfg, err := a.m.Configuration()
	if err != nil {
		return err
	}

	view := configView{
		Registry:           a.registry.source,
		Strategy:           string(cfg.Strategy),
		ExcludedEntities:   cfg.ExcludedEntities,
		Elevator:           string(cfg.Elevator),
		ExcludedSubdomains: cfg.ExcludedSubdomains,
		ExcludedPaths:      cfg.ExcludedPaths,
		RequireTenant:      cfg.RequireTenant,
		StrictImmutability: cfg.StrictImmutability,
		Audit:              auditView{Access: cfg.Audit.Access, Violations: cfg.Audit.Violations},
		Callbacks:          callbackNames(cfg.Callbacks),
	}
	switch cfg.Strategy {
	case tenancy.StrategySchema:
		view.SchemaFormat = cfg.SchemaFormat
		view.PersistentSchemas = cfg.PersistentSchemas
		view.DefaultSchema = cfg.DefaultSchema
	default:
		view.TenantColumn = cfg.TenantColumn
	}
	view.Tenants.ids, view.Tenants.err = a.m.AllTenants(ctx)

	enc := yaml.NewEncoder(a.out)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func callbackNames(c tenancy.Callbacks) []string {
	var names []string
	if c.BeforeSwitch != nil {
		names = append(names, "before_switch")
	}
	if c.AfterSwitch != nil {
		names = append(names, "after_switch")
	}
	if c.BeforeCreate != nil {
		names = append(names, "before_create")
	}
	if c.AfterCreate != nil {
		names = append(names, "after_create")
	}
	return names
}

// createCmd registers id with a writable registry, then provisions it.
// A failed provisioning unregisters the id again.
func createCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.out)
	migrate := fs.Bool("migrate", false, "apply tenant migrations to the new schema")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleArg(fs, "tenant id")
	if err != nil {
		return err
	}

	registered := false
	if a.registry.writable() {
		known, err := a.m.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !known {
			if err := a.registry.add(ctx, id); err != nil {
				return fmt.Errorf("register tenant: %w", err)
			}
			registered = true
		}
	}

	if err := a.m.Create(ctx, id); err != nil {
		if registered {
			if rerr := a.registry.remove(context.WithoutCancel(ctx), id); rerr != nil {
				err = errors.Join(err, fmt.Errorf("unregister tenant: %w", rerr))
			}
		}
		return err
	}

	if *migrate {
		if a.pool == nil {
			return fmt.Errorf("%w: -migrate needs the schema strategy", errUsage)
		}
		if err := pg.MigrateTenant(ctx, a.pgCfg, a.m, id, a.log); err != nil {
			return err
		}
	}

	a.log.InfoContext(ctx, "tenant created", logger.TenantID(id))
	fmt.Fprintln(a.out, id)
	return nil
}

// dropCmd removes the tenant storage, then unregisters the id.
func dropCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("drop", flag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleArg(fs, "tenant id")
	if err != nil {
		return err
	}

	known, err := a.m.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %q", tenancy.ErrTenantNotFound, id)
	}

	if err := a.m.Drop(ctx, id); err != nil {
		return err
	}
	if a.registry.writable() {
		if err := a.registry.remove(ctx, id); err != nil {
			return fmt.Errorf("unregister tenant: %w", err)
		}
	}

	a.log.InfoContext(ctx, "tenant dropped", logger.TenantID(id))
	return nil
}

func migrateCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(a.out)
	shared := fs.Bool("shared", true, "apply shared migrations")
	tenants := fs.Bool("tenants", true, "apply tenant migrations to every tenant schema")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *shared {
		if err := pg.Migrate(ctx, a.pool, a.pgCfg, a.log); err != nil {
			return err
		}
	}
	if *tenants {
		return pg.MigrateTenants(ctx, a.pgCfg, a.m, a.log)
	}
	return nil
}

// eachCmd runs the named task once per tenant, in registry order, and
// stops at the first failure.
func eachCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("each", flag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := singleArg(fs, "task name")
	if err != nil {
		return err
	}

	h, ok := newTasks(a).lookup(name)
	if !ok {
		return fmt.Errorf("%w: unknown task %q", errUsage, name)
	}

	return a.m.Each(ctx, func(ctx context.Context, id string) error {
		if err := h.Handle(ctx, nil); err != nil {
			return fmt.Errorf("task %s for tenant %q: %w", name, id, err)
		}
		fmt.Fprintf(a.out, "%s\tok\n", id)
		return nil
	})
}

func singleArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return "", fmt.Errorf("%w: %s %s", errUsage, fs.Name(), what)
	}
	return fs.Arg(0), nil
}
