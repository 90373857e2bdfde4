package aggregation

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/actor"
	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/querybuild"
	"github.com/eastonLua/teable/pkg/queryfilter"
)

// Separator between field id and statistic function in result column
// aliases. Statistic function names never contain it, so splitting on the
// last occurrence is unambiguous.
const aliasSeparator = "_"

// AggregationRequest selects what to aggregate.
type AggregationRequest struct {
	ViewID     string
	FieldIDs   []string
	Filter     *queryfilter.Filter
	FieldStats []FieldStat
}

// AggregationValue is the computed total for one statistic function.
type AggregationValue struct {
	Value   interface{}   `json:"value"`
	AggFunc StatisticFunc `json:"aggFunc"`
}

// Aggregation is the computed total of one statistic field.
type Aggregation struct {
	FieldID string            `json:"fieldId"`
	Total   *AggregationValue `json:"total"`
}

// AggregationResult is the response of ComputeAggregations.
type AggregationResult struct {
	Aggregations []Aggregation `json:"aggregations"`
}

// ComputeAggregations computes every requested per-field statistic over the
// filtered row set in a single round trip. An empty resolved statistic-field
// list issues no query and yields an empty result.
func (s *Service) ComputeAggregations(ctx context.Context, tableID string, req AggregationRequest) (*AggregationResult, error) {
	tableName, err := s.c.Tables.TableNameFor(ctx, tableID)
	if err != nil {
		return nil, err
	}
	fields, err := s.c.Fields.LoadFields(ctx, tableID)
	if err != nil {
		return nil, err
	}

	params, err := s.resolveStatisticsParams(ctx, tableID, req, fields)
	if err != nil {
		return nil, err
	}
	if len(params.StatisticFields) == 0 {
		return &AggregationResult{}, nil
	}

	fieldSet := fieldmeta.NewFieldSet(fields)
	plan := querybuild.NewPlan(tableName)
	plan, err = s.c.Filters.Apply(plan, fieldSet, params.Filter, actor.From(ctx))
	if err != nil {
		return nil, err
	}

	var columns []querybuild.AggregateColumn
	for _, sf := range params.StatisticFields {
		expr, ok := statisticExpr(sf.StatisticFunc, sf.Field)
		if !ok {
			continue
		}
		columns = append(columns, querybuild.AggregateColumn{
			Expr:  expr,
			Alias: sf.Field.ID + aliasSeparator + string(sf.StatisticFunc),
		})
	}
	query, args, err := plan.ToAggregateSQL(columns)
	if err != nil {
		return nil, errors.Wrap(err, "build aggregation query")
	}
	level.Debug(s.logger).Log("msg", "executing aggregation query", "table_id", tableID, "query", query)

	defer s.observe("aggregation", time.Now())
	row, err := s.queryOneRow(ctx, query, args)
	if err != nil {
		return nil, errors.Wrap(err, "execute aggregation query")
	}

	return &AggregationResult{Aggregations: decodeAggregations(row)}, nil
}

type resultRow struct {
	columns []string
	values  []interface{}
}

// queryOneRow executes a query expected to return at most one row and
// returns it as column-name/value pairs.
func (s *Service) queryOneRow(ctx context.Context, query string, args []interface{}) (*resultRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &resultRow{columns: columns}
	if rows.Next() {
		out.values = make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range out.values {
			dest[i] = &out.values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

// decodeAggregations splits each result column alias back into its
// (field id, statistic function) pair and converts the scalar. Columns whose
// alias has no recognizable function suffix are dropped.
func decodeAggregations(row *resultRow) []Aggregation {
	if row == nil || row.values == nil {
		return nil
	}
	var out []Aggregation
	for i, name := range row.columns {
		sep := strings.LastIndex(name, aliasSeparator)
		if sep <= 0 || sep == len(name)-1 {
			continue
		}
		fieldID := name[:sep]
		fn, ok := ParseStatisticFunc(name[sep+1:])
		if !ok {
			continue
		}
		out = append(out, Aggregation{
			FieldID: fieldID,
			Total: &AggregationValue{
				Value:   formatConvertValue(row.values[i], fn),
				AggFunc: fn,
			},
		})
	}
	return out
}
