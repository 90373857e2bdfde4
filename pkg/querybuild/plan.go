// Package querybuild provides an immutable query-plan value describing an
// in-progress read query (table, predicates, select expressions, grouping and
// ordering) that is compiled to parameterized PostgreSQL in a single step.
// Collaborators that "apply to an in-progress query" do so by deriving a new
// Plan rather than mutating shared builder state.
package querybuild

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Plan describes a read query over a single physical table. The zero value is
// not usable; construct one with NewPlan. All methods return a derived copy,
// the receiver is never modified.
type Plan struct {
	table    string
	columns  []column
	wheres   []sq.Sqlizer
	groupBys []string
	orderBys []string
	limit    *uint64
	offset   *uint64
}

type column struct {
	expr string
	args []interface{}
}

// NewPlan returns an empty plan over the given physical table name.
func NewPlan(table string) Plan {
	return Plan{table: table}
}

// Table returns the physical table the plan reads from.
func (p Plan) Table() string { return p.table }

func (p Plan) clone() Plan {
	c := p
	c.columns = append([]column(nil), p.columns...)
	c.wheres = append([]sq.Sqlizer(nil), p.wheres...)
	c.groupBys = append([]string(nil), p.groupBys...)
	c.orderBys = append([]string(nil), p.orderBys...)
	return c
}

// Column adds a select expression.
func (p Plan) Column(expr string, args ...interface{}) Plan {
	c := p.clone()
	c.columns = append(c.columns, column{expr: expr, args: args})
	return c
}

// Where adds a predicate. Predicates are combined with AND.
func (p Plan) Where(cond sq.Sqlizer) Plan {
	c := p.clone()
	c.wheres = append(c.wheres, cond)
	return c
}

// GroupBy adds grouping expressions.
func (p Plan) GroupBy(exprs ...string) Plan {
	c := p.clone()
	c.groupBys = append(c.groupBys, exprs...)
	return c
}

// OrderBy adds ordering expressions.
func (p Plan) OrderBy(exprs ...string) Plan {
	c := p.clone()
	c.orderBys = append(c.orderBys, exprs...)
	return c
}

// Limit sets a row limit.
func (p Plan) Limit(n uint64) Plan {
	c := p.clone()
	c.limit = &n
	return c
}

// Offset sets a row offset.
func (p Plan) Offset(n uint64) Plan {
	c := p.clone()
	c.offset = &n
	return c
}

// ToSelectSQL compiles the full plan to a SELECT statement with $n
// placeholders. A plan without select expressions compiles to SELECT *.
func (p Plan) ToSelectSQL() (string, []interface{}, error) {
	b := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select()
	if len(p.columns) == 0 {
		b = b.Column("*")
	}
	for _, c := range p.columns {
		b = b.Column(sq.Expr(c.expr, c.args...))
	}
	b = b.From(p.table)
	for _, w := range p.wheres {
		b = b.Where(w)
	}
	if len(p.groupBys) > 0 {
		b = b.GroupBy(p.groupBys...)
	}
	if len(p.orderBys) > 0 {
		b = b.OrderBy(p.orderBys...)
	}
	if p.limit != nil {
		b = b.Limit(*p.limit)
	}
	if p.offset != nil {
		b = b.Offset(*p.offset)
	}
	return b.ToSql()
}

// ToCountSQL compiles a SELECT COUNT(*) statement from the plan's table and
// predicates only. Select expressions, grouping, ordering, limit and offset
// accumulated on the plan do not survive into the statement, so a count built
// from a plan that passed through arbitrary collaborator stages always counts
// the filtered row set and nothing else.
func (p Plan) ToCountSQL() (string, []interface{}, error) {
	b := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select("COUNT(*)").From(p.table)
	for _, w := range p.wheres {
		b = b.Where(w)
	}
	return b.ToSql()
}

// AggregateColumn pairs a SQL aggregate expression with its output alias.
type AggregateColumn struct {
	Expr  string
	Alias string
}

// ToAggregateSQL compiles SELECT <aggregates> FROM (SELECT * FROM table WHERE
// <predicates>) AS filtered. The two-stage shape evaluates the plan's
// predicates exactly once no matter how many aggregate expressions reference
// the row set.
func (p Plan) ToAggregateSQL(columns []AggregateColumn) (string, []interface{}, error) {
	inner := sq.Select("*").From(p.table)
	for _, w := range p.wheres {
		inner = inner.Where(w)
	}
	outer := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select().FromSelect(inner, "filtered")
	for _, c := range columns {
		outer = outer.Column(sq.Expr(c.Expr + " AS " + QuoteIdent(c.Alias)))
	}
	return outer.ToSql()
}

// QuoteIdent quotes a PostgreSQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
