package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/queue"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

var errNoDatabase = errors.New("task needs a database connection")

// Built-in task names, shared by the each command and the queue worker.
const (
	taskPing       = "tenant.ping"
	taskStorage    = "tenant.storage"
	taskCountNotes = "notes.count"
)

type tasks []queue.Handler

func newTasks(a *app) tasks {
	return tasks{
		queue.NewNamedHandler(taskPing, func(ctx context.Context) error {
			id, err := a.m.Current(ctx)
			if err != nil {
				return err
			}
			a.log.InfoContext(ctx, "tenant ping", logger.TenantID(id))
			return nil
		}),
		queue.NewNamedHandler(taskStorage, func(ctx context.Context) error {
			where, err := storageOf(ctx, a.m)
			if err != nil {
				return err
			}
			a.log.InfoContext(ctx, "tenant storage", "location", where)
			return nil
		}),
		queue.NewNamedHandler(taskCountNotes, func(ctx context.Context) error {
			store, ok := newNoteStore(a)
			if !ok {
				return errNoDatabase
			}
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			a.log.InfoContext(ctx, "notes counted", "count", n)
			return nil
		}),
	}
}

func (t tasks) lookup(name string) (queue.Handler, bool) {
	for _, h := range t {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// storageOf describes where the active tenant's data lives: the session
// search_path for the schema strategy, the discriminator for the column one.
func storageOf(ctx context.Context, m *tenancy.Manager) (string, error) {
	adapter, err := m.Adapter()
	if err != nil {
		return "", err
	}
	switch a := adapter.(type) {
	case *tenancy.SchemaAdapter:
		conn, err := m.Conn(ctx)
		if err != nil {
			return "", err
		}
		var path string
		if err := conn.QueryRowContext(ctx, "SHOW search_path").Scan(&path); err != nil {
			return "", fmt.Errorf("read search_path: %w", err)
		}
		return "search_path " + path, nil
	case *tenancy.ColumnAdapter:
		id, err := m.Current(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("column %s = %q", a.Column(), id), nil
	}
	return "", fmt.Errorf("%w: unsupported adapter %T", tenancy.ErrConfiguration, adapter)
}
