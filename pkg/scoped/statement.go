package scoped

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// statement builds SQL for one entity with "?" placeholders.
type statement struct {
	entity    string
	column    string
	tenant    string
	immutable bool
	unscoped  bool
}

func (s *statement) filtered() bool { return !s.unscoped }

func (s *statement) table() string { return pq.QuoteIdentifier(s.entity) }

func (s *statement) predicate() string {
	return pq.QuoteIdentifier(s.column) + " = ?"
}

// where joins the tenant predicate with the caller's filter.
func (s *statement) where(filter string, args []any) (string, []any) {
	var clauses []string
	var out []any
	if s.filtered() {
		clauses = append(clauses, s.predicate())
		out = append(out, s.tenant)
	}
	if filter = strings.TrimSpace(filter); filter != "" {
		clauses = append(clauses, "("+filter+")")
		out = append(out, args...)
	}
	if len(clauses) == 0 {
		return "", out
	}
	return " WHERE " + strings.Join(clauses, " AND "), out
}

func (s *statement) selectSQL(filter string, args []any) (string, []any) {
	where, args := s.where(filter, args)
	return "SELECT * FROM " + s.table() + where, args
}

func (s *statement) countSQL(filter string, args []any) (string, []any) {
	where, args := s.where(filter, args)
	return "SELECT COUNT(*) FROM " + s.table() + where, args
}

func (s *statement) insertSQL(values map[string]any) (string, []any) {
	if s.filtered() {
		if _, ok := values[s.column]; !ok {
			values = maps.Clone(values)
			if values == nil {
				values = map[string]any{}
			}
			values[s.column] = s.tenant
		}
	}

	cols := slices.Sorted(maps.Keys(values))
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		args[i] = values[c]
	}

	if len(cols) == 0 {
		return "INSERT INTO " + s.table() + " DEFAULT VALUES", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table(),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")), args
}

func (s *statement) updateSQL(set map[string]any, filter string, args []any) (string, []any) {
	cols := slices.Sorted(maps.Keys(set))
	assignments := make([]string, len(cols))
	values := make([]any, 0, len(cols)+len(args)+1)
	for i, c := range cols {
		assignments[i] = pq.QuoteIdentifier(c) + " = ?"
		values = append(values, set[c])
	}
	where, whereArgs := s.where(filter, args)
	return "UPDATE " + s.table() + " SET " + strings.Join(assignments, ", ") + where,
		append(values, whereArgs...)
}

func (s *statement) deleteSQL(filter string, args []any) (string, []any) {
	where, args := s.where(filter, args)
	return "DELETE FROM " + s.table() + where, args
}

// checkImmutable rejects updates that touch the discriminator when
// strict immutability is on.
func (s *statement) checkImmutable(set map[string]any) error {
	if !s.immutable {
		return nil
	}
	if _, ok := set[s.column]; ok {
		return fmt.Errorf("%w: %s.%s", tenancy.ErrTenantImmutable, s.entity, s.column)
	}
	return nil
}
