package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/scoped"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// note is a row of the notes table created by the bundled migrations.
type note struct {
	ID        int64     `db:"id" json:"id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// noteStore reads and writes the active tenant's notes.
type noteStore interface {
	List(ctx context.Context) ([]note, error)
	Add(ctx context.Context, body string) error
	Count(ctx context.Context) (int64, error)
}

// newNoteStore picks the store matching the isolation strategy. It
// reports false when no database is configured.
func newNoteStore(a *app) (noteStore, bool) {
	if a.db == nil {
		return nil, false
	}
	adapter, err := a.m.Adapter()
	if err != nil {
		return nil, false
	}
	if _, ok := adapter.(*tenancy.SchemaAdapter); ok {
		return schemaNotes{m: a.m}, true
	}
	// The discriminator column is not mapped on note.
	return columnNotes{db: scoped.New(a.db.Unsafe(), a.m)}, true
}

type columnNotes struct {
	db *scoped.DB
}

func (s columnNotes) List(ctx context.Context) ([]note, error) {
	var out []note
	if err := s.db.Select(ctx, &out, "notes", ""); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b note) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s columnNotes) Add(ctx context.Context, body string) error {
	_, err := s.db.Insert(ctx, "notes", map[string]any{"body": body})
	return err
}

func (s columnNotes) Count(ctx context.Context) (int64, error) {
	return s.db.Count(ctx, "notes", "")
}

// schemaNotes relies on the search_path of the flow connection, so the
// statements name the table unqualified.
type schemaNotes struct {
	m *tenancy.Manager
}

func (s schemaNotes) List(ctx context.Context) ([]note, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = conn.QueryRowContext(ctx,
		`SELECT coalesce(json_agg(json_build_object('id', id, 'body', body, 'created_at', created_at) ORDER BY id), '[]') FROM notes`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	var out []note
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return out, nil
}

func (s schemaNotes) Add(ctx context.Context, body string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO notes (body) VALUES ($1)`, body); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	return nil
}

func (s schemaNotes) Count(ctx context.Context) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

// conn requires an active tenant: without one the search_path only holds
// the shared schemas.
func (s schemaNotes) conn(ctx context.Context) (tenancy.Conn, error) {
	id, err := s.m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, tenancy.ErrTenantContextMissing
	}
	return s.m.Conn(ctx)
}
