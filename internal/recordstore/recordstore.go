// Package recordstore wraps the external REST document store the scheduler
// persists into. The store offers create, get, field-level patch and filtered
// list over opaque record ids; it has no transactions and no conditional
// writes, which is why callers layer their own claim conventions on top.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no record exists under the id.
var ErrNotFound = errors.New("recordstore: record not found")

// Record is one document in a table.
type Record struct {
	ID          string
	Fields      map[string]any
	CreatedTime time.Time
}

// Store is the document-store contract. The HTTP client talks to the real
// store; Memory backs tests.
type Store interface {
	Create(ctx context.Context, table string, fields map[string]any) (Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Patch(ctx context.Context, table, id string, fields map[string]any) (Record, error)
	List(ctx context.Context, table string, q Query) ([]Record, error)
}

// Condition is a single field predicate: equality or <= timestamp ordering.
type Condition struct {
	Field string
	Op    Op
	Value any
}

type Op string

const (
	OpEq  Op = "="
	OpLte Op = "<="
)

// Query is a disjunction of conjunctions: records match when every condition
// in at least one clause holds. A nil Query matches everything. Predicates are
// pushed to the store as a filter formula rather than evaluated client-side.
type Query [][]Condition

// Eq builds an equality condition.
func Eq(field string, value any) Condition { return Condition{Field: field, Op: OpEq, Value: value} }

// Lte builds a "field <= value" condition; time values compare as timestamps.
func Lte(field string, value any) Condition { return Condition{Field: field, Op: OpLte, Value: value} }

// Formula compiles the query into the store's filter expression syntax.
func (q Query) Formula() string {
	if len(q) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(q))
	for _, conds := range q {
		parts := make([]string, 0, len(conds))
		for _, c := range conds {
			parts = append(parts, c.formula())
		}
		switch len(parts) {
		case 0:
			continue
		case 1:
			clauses = append(clauses, parts[0])
		default:
			clauses = append(clauses, fmt.Sprintf("AND(%s)", strings.Join(parts, ",")))
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return fmt.Sprintf("OR(%s)", strings.Join(clauses, ","))
}

func (c Condition) formula() string {
	switch c.Op {
	case OpLte:
		return fmt.Sprintf("{%s}<=%s", c.Field, formulaValue(c.Value))
	default:
		return fmt.Sprintf("{%s}=%s", c.Field, formulaValue(c.Value))
	}
}

func formulaValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return fmt.Sprintf("%q", t.UTC().Format(time.RFC3339))
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Matches evaluates the query against a record's fields. The Memory store uses
// it so tests see exactly the predicate the formula expresses.
func (q Query) Matches(fields map[string]any) bool {
	if len(q) == 0 {
		return true
	}
	for _, conds := range q {
		if clauseMatches(conds, fields) {
			return true
		}
	}
	return false
}

func clauseMatches(conds []Condition, fields map[string]any) bool {
	for _, c := range conds {
		if !c.matches(fields[c.Field]) {
			return false
		}
	}
	return true
}

func (c Condition) matches(got any) bool {
	switch c.Op {
	case OpLte:
		want, okW := asTime(c.Value)
		have, okH := asTime(got)
		if !okW || !okH {
			return false
		}
		return !have.After(want)
	default:
		return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", c.Value)
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
