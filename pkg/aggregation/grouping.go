package aggregation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/actor"
	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/querybuild"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
)

const rowCountAlias = "__row_count"

// GroupPointType discriminates the two group point kinds.
type GroupPointType int

const (
	GroupPointTypeHeader GroupPointType = 0
	GroupPointTypeRow    GroupPointType = 1
)

// GroupPoint is one element of the flattened nested-group sequence: a
// HeaderPoint entering a distinct value at a nesting depth, or a RowPoint
// carrying the row count of the currently open group path.
type GroupPoint interface {
	point()
}

// HeaderPoint marks entry into a new distinct value at nesting level Depth.
type HeaderPoint struct {
	ID    string         `json:"id"`
	Type  GroupPointType `json:"type"`
	Depth int            `json:"depth"`
	Value interface{}    `json:"value"`
}

// RowPoint carries the row count of the most specific open group
// combination.
type RowPoint struct {
	Type  GroupPointType `json:"type"`
	Count int64          `json:"count"`
}

func (HeaderPoint) point() {}
func (RowPoint) point()    {}

// GroupPointsRequest selects what to group.
type GroupPointsRequest struct {
	ViewID  string
	GroupBy []querysort.SortKey
	Filter  *queryfilter.Filter
}

// ComputeGroupPoints groups the filtered row set by the ordered group-by
// key list and flattens the result into a header/row-count sequence. An
// absent view or an empty group-by list yields a nil sequence, not an error.
// The distinct-combination pre-check runs first; the grouped query is never
// issued when the limit would be exceeded.
func (s *Service) ComputeGroupPoints(ctx context.Context, tableID string, req GroupPointsRequest) ([]GroupPoint, error) {
	if req.ViewID == "" {
		return nil, nil
	}
	v, err := s.c.Views.LoadView(ctx, tableID, req.ViewID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	groupBy := req.GroupBy
	if len(groupBy) == 0 {
		groupBy = v.Group
	}
	if len(groupBy) == 0 {
		return nil, nil
	}

	tableName, err := s.c.Tables.TableNameFor(ctx, tableID)
	if err != nil {
		return nil, err
	}
	fields, err := s.c.Fields.LoadFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	fieldSet := fieldmeta.NewFieldSet(fields)

	groupFields := make([]*fieldmeta.Field, 0, len(groupBy))
	keys := make([]querysort.SortKey, 0, len(groupBy))
	for _, key := range groupBy {
		field, ok := fieldSet.Get(key.FieldID)
		if !ok {
			level.Debug(s.logger).Log("msg", "group by references unknown field, skipping", "field_id", key.FieldID)
			continue
		}
		groupFields = append(groupFields, field)
		keys = append(keys, key)
	}
	if len(groupFields) == 0 {
		return nil, nil
	}

	filter := queryfilter.MergeWithDefaultFilter(v.Filter, req.Filter)

	base := querybuild.NewPlan(tableName)
	base, err = s.c.Filters.Apply(base, fieldSet, filter, actor.From(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.checkGroupLimit(ctx, tableID, base, groupFields); err != nil {
		return nil, err
	}

	return s.runGroupedQuery(ctx, tableID, base, fieldSet, groupFields, keys)
}

func groupColumnExpr(field *fieldmeta.Field) string {
	col := querybuild.QuoteIdent(field.DBFieldName)
	if field.IsJSON() {
		// Distinct-counting or grouping structured values is undefined.
		col += "::text"
	}
	return col
}

// checkGroupLimit issues a single query counting the distinct values of each
// group-by column and rejects the request when the summed counts — the upper
// bound on emitted group headers — exceed the configured ceiling.
func (s *Service) checkGroupLimit(ctx context.Context, tableID string, base querybuild.Plan, groupFields []*fieldmeta.Field) error {
	plan := base
	for i, field := range groupFields {
		plan = plan.Column(fmt.Sprintf(
			"COUNT(DISTINCT %s) AS %s",
			groupColumnExpr(field),
			querybuild.QuoteIdent("__distinct_"+strconv.Itoa(i)),
		))
	}
	query, args, err := plan.ToSelectSQL()
	if err != nil {
		return errors.Wrap(err, "build group limit query")
	}
	level.Debug(s.logger).Log("msg", "executing group limit pre-check", "table_id", tableID, "query", query)

	defer s.observe("group_limit_check", time.Now())
	row, err := s.queryOneRow(ctx, query, args)
	if err != nil {
		return errors.Wrap(err, "execute group limit query")
	}

	distinct := 0
	for _, v := range row.values {
		distinct += int(toInt64(v))
	}
	if distinct > s.cfg.MaxGroupPoints {
		s.metrics.groupLimitRejections.Inc()
		return &GroupLimitError{Distinct: distinct, Limit: s.cfg.MaxGroupPoints}
	}
	return nil
}

func (s *Service) runGroupedQuery(ctx context.Context, tableID string, base querybuild.Plan, fieldSet *fieldmeta.FieldSet, groupFields []*fieldmeta.Field, keys []querysort.SortKey) ([]GroupPoint, error) {
	// The decode below depends on rows arriving ordered by the group keys,
	// outermost first.
	plan := s.c.Sorts.Apply(base, fieldSet, keys)
	plan = plan.Column("COUNT(*) AS " + querybuild.QuoteIdent(rowCountAlias))
	for _, field := range groupFields {
		expr := groupColumnExpr(field)
		plan = plan.Column(expr + " AS " + querybuild.QuoteIdent(field.ID))
		plan = plan.GroupBy(expr)
	}

	query, args, err := plan.ToSelectSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build grouped query")
	}
	level.Debug(s.logger).Log("msg", "executing grouped query", "table_id", tableID, "query", query)

	defer s.observe("group_points", time.Now())
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "execute grouped query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read grouped query columns")
	}
	countIdx := -1
	valueIdx := make([]int, len(groupFields))
	for i := range valueIdx {
		valueIdx[i] = -1
	}
	for i, name := range columns {
		if name == rowCountAlias {
			countIdx = i
			continue
		}
		for j, field := range groupFields {
			if name == field.ID {
				valueIdx[j] = i
			}
		}
	}
	if countIdx < 0 {
		return nil, errors.New("grouped query result misses the row count column")
	}

	// One slot per depth. A slot that has seen nothing yet never equals an
	// incoming value, so the first row after a reset always opens a header.
	type groupSlot struct {
		seen bool
		raw  string
	}
	slots := make([]groupSlot, len(groupFields))

	var points []GroupPoint
	values := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan grouped row")
		}
		for depth, field := range groupFields {
			raw := values[valueIdx[depth]]
			rawKey := rawGroupValue(raw)
			if slots[depth].seen && slots[depth].raw == rawKey {
				continue
			}
			slots[depth] = groupSlot{seen: true, raw: rawKey}
			for deeper := depth + 1; deeper < len(slots); deeper++ {
				slots[deeper] = groupSlot{}
			}
			points = append(points, HeaderPoint{
				ID:    groupHeaderID(field.ID, rawKey),
				Type:  GroupPointTypeHeader,
				Depth: depth,
				Value: field.CellValue(raw),
			})
		}
		points = append(points, RowPoint{
			Type:  GroupPointTypeRow,
			Count: toInt64(values[countIdx]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate grouped rows")
	}
	return points, nil
}

// rawGroupValue renders the pre-conversion grouped value for identity
// comparisons and header id hashing. Nullness is encoded in the key: NULL
// and the empty string are distinct groups and must not share a run or a
// header id.
func rawGroupValue(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return "n"
	case []byte:
		return "v" + string(v)
	default:
		return "v" + fmt.Sprint(v)
	}
}

// groupHeaderID derives a deterministic id from the field id and the raw
// grouped value, stable across repeated calls for the same group.
func groupHeaderID(fieldID, rawValue string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fieldID+"_"+rawValue))
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		if parsed, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return parsed
		}
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
