package queryfilter

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/querybuild"
)

// Compiler turns a filter tree into SQL predicates on a query plan.
type Compiler struct {
	logger log.Logger
}

// NewCompiler creates a filter compiler.
func NewCompiler(logger log.Logger) *Compiler {
	return &Compiler{logger: logger}
}

// Apply compiles the filter against the field set and returns a plan with the
// resulting predicate added. A nil or empty filter returns the plan
// unchanged. Items referencing unknown fields are skipped. actorID resolves
// the Me placeholder; an empty actorID turns a Me predicate into a match
// against the empty string.
func (c *Compiler) Apply(plan querybuild.Plan, fields *fieldmeta.FieldSet, f *Filter, actorID string) (querybuild.Plan, error) {
	if f == nil || len(f.Set) == 0 {
		return plan, nil
	}
	cond := c.compileGroup(f.Conjunction, f.Set, fields, actorID)
	if cond == nil {
		return plan, nil
	}
	return plan.Where(cond), nil
}

func (c *Compiler) compileGroup(conj Conjunction, items []Item, fields *fieldmeta.FieldSet, actorID string) sq.Sqlizer {
	var conds []sq.Sqlizer
	for i := range items {
		item := &items[i]
		var cond sq.Sqlizer
		if item.isGroup() {
			cond = c.compileGroup(item.Conjunction, item.Set, fields, actorID)
		} else {
			cond = c.compileItem(item, fields, actorID)
		}
		if cond != nil {
			conds = append(conds, cond)
		}
	}
	if len(conds) == 0 {
		return nil
	}
	if conj == Or {
		return sq.Or(conds)
	}
	return sq.And(conds)
}

func (c *Compiler) compileItem(item *Item, fields *fieldmeta.FieldSet, actorID string) sq.Sqlizer {
	field, ok := fields.Get(item.FieldID)
	if !ok {
		level.Debug(c.logger).Log("msg", "filter references unknown field, skipping", "field_id", item.FieldID)
		return nil
	}

	col := querybuild.QuoteIdent(field.DBFieldName)
	if field.IsJSON() {
		// Structured values compare as text.
		col += "::text"
	}
	value := resolveValue(item.Value, actorID)

	switch item.Operator {
	case OpIs:
		return sq.Eq{col: value}
	case OpIsNot:
		return sq.NotEq{col: value}
	case OpContains:
		return sq.ILike{col: "%" + fmt.Sprint(value) + "%"}
	case OpDoesNotContain:
		return sq.NotILike{col: "%" + fmt.Sprint(value) + "%"}
	case OpIsEmpty:
		return sq.Eq{col: nil}
	case OpIsNotEmpty:
		return sq.NotEq{col: nil}
	case OpIsGreater:
		return sq.Gt{col: value}
	case OpIsGreaterEqual:
		return sq.GtOrEq{col: value}
	case OpIsLess:
		return sq.Lt{col: value}
	case OpIsLessEqual:
		return sq.LtOrEq{col: value}
	case OpIsAnyOf:
		return sq.Eq{col: valueList(value, actorID)}
	case OpIsNoneOf:
		return sq.NotEq{col: valueList(value, actorID)}
	}
	level.Debug(c.logger).Log("msg", "unknown filter operator, skipping", "operator", item.Operator)
	return nil
}

func resolveValue(v interface{}, actorID string) interface{} {
	if s, ok := v.(string); ok && s == Me {
		return actorID
	}
	return v
}

func valueList(v interface{}, actorID string) []interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return []interface{}{resolveValue(v, actorID)}
	}
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		out = append(out, resolveValue(item, actorID))
	}
	return out
}
