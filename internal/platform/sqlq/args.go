// Package sqlq assembles dynamic WHERE clauses with positional arguments.
package sqlq

import (
	"strconv"
	"strings"
)

// Dialect selects the placeholder syntax.
type Dialect int

const (
	// Dollar produces $1, $2, ... (PostgreSQL).
	Dollar Dialect = iota
	// Question produces ? placeholders (SQLite).
	Question
)

// Args accumulates bind values and hands out matching placeholders.
type Args struct {
	dialect Dialect
	values  []any
}

// NewArgs returns an empty argument list for the dialect.
func NewArgs(d Dialect) *Args {
	return &Args{dialect: d}
}

// Add appends a value and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	if a.dialect == Question {
		return "?"
	}
	return "$" + strconv.Itoa(len(a.values))
}

// Values returns the bound values in placeholder order.
func (a *Args) Values() []any {
	return a.values
}

// Len reports how many values are bound.
func (a *Args) Len() int {
	return len(a.values)
}

// Where collects AND-ed conditions.
type Where struct {
	conds []string
}

// And appends a condition. Empty strings are ignored.
func (w *Where) And(cond string) {
	if strings.TrimSpace(cond) == "" {
		return
	}
	w.conds = append(w.conds, cond)
}

// String renders the conditions, or "1=1" when there are none.
func (w *Where) String() string {
	if len(w.conds) == 0 {
		return "1=1"
	}
	return "(" + strings.Join(w.conds, ") AND (") + ")"
}

// Like wraps a search term for a contains match, escaping LIKE metacharacters.
func Like(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
