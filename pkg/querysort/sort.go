// Package querysort compiles an ordered list of (field, direction) pairs into
// ORDER BY clauses on a query plan.
package querysort

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/querybuild"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// SortKey orders a query by one field.
type SortKey struct {
	FieldID string `json:"fieldId"`
	Order   Order  `json:"order"`
}

// Compiler appends ORDER BY clauses to a query plan.
type Compiler struct {
	logger log.Logger
}

// NewCompiler creates a sort compiler.
func NewCompiler(logger log.Logger) *Compiler {
	return &Compiler{logger: logger}
}

// Apply adds one ORDER BY clause per key, in key order. Keys referencing
// unknown fields are skipped. JSON-typed columns order by their text form.
func (c *Compiler) Apply(plan querybuild.Plan, fields *fieldmeta.FieldSet, keys []SortKey) querybuild.Plan {
	for _, key := range keys {
		field, ok := fields.Get(key.FieldID)
		if !ok {
			level.Debug(c.logger).Log("msg", "sort references unknown field, skipping", "field_id", key.FieldID)
			continue
		}
		col := querybuild.QuoteIdent(field.DBFieldName)
		if field.IsJSON() {
			col += "::text"
		}
		dir := "ASC"
		if key.Order == Desc {
			dir = "DESC"
		}
		plan = plan.OrderBy(col + " " + dir)
	}
	return plan
}
