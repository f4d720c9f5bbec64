// Command tenantkit administers tenants and serves the tenant-aware HTTP API.
//
//	tenantkit [-env .env] <command> [args]
//
// Commands:
//
//	list            print registered tenants in registry order
//	config          print the effective tenancy configuration as YAML
//	create <id>     provision a tenant (and register it with a writable registry)
//	drop <id>       remove a tenant's storage (and unregister it)
//	migrate         apply shared migrations, then tenant migrations per tenant
//	each <task>     run a named task once for every tenant
//	serve           run the HTTP API and the queue worker
//
// Settings come from the environment (TENANCY_*, PG_*, REDIS_*, MONGODB_*,
// HTTP_*, QUEUE_*); TENANTKIT_REGISTRY selects the tenant registry source:
// static (TENANCY_TENANTS), redis or mongo.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
)

// command describes a subcommand. Commands with flow set run inside one
// tenancy flow, so the schema strategy keeps a single pinned connection
// for the whole command.
type command struct {
	usage  string
	withDB bool
	flow   bool
	run    func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"list":    {usage: "list", flow: true, run: listCmd},
	"config":  {usage: "config", run: configCmd},
	"create":  {usage: "create [-migrate] <id>", flow: true, run: createCmd},
	"drop":    {usage: "drop <id>", flow: true, run: dropCmd},
	"migrate": {usage: "migrate [-shared=true] [-tenants=true]", withDB: true, run: migrateCmd},
	"each":    {usage: "each <task>", flow: true, run: eachCmd},
	"serve":   {usage: "serve", run: serveCmd},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tenantkit: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tenantkit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "comma-separated .env files to load")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = strings.Split(*envFile, ",")
	}

	a, err := newApp(ctx, appOptions{
		envFiles: envFiles,
		stdout:   stdout,
		stderr:   stderr,
		withDB:   cmd.withDB,
	})
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.flow {
		fctx, release, err := a.m.Flow(ctx)
		if err != nil {
			return err
		}
		defer release()
		ctx = fctx
	}
	return cmd.run(ctx, a, fs.Args()[1:])
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: tenantkit [-env file] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
