package aggregation

import (
	"context"

	"github.com/go-kit/log/level"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/view"
)

// FieldStat is a caller-supplied request to compute one statistic over one
// field.
type FieldStat struct {
	FieldID       string `json:"fieldId"`
	StatisticFunc string `json:"statisticFunc"`
}

// StatisticField is one resolved statistic to compute.
type StatisticField struct {
	Field         *fieldmeta.Field
	StatisticFunc StatisticFunc
}

// StatisticsParams is the merged descriptor consumed by the aggregation
// query builder: the effective filter and the resolved statistic fields.
type StatisticsParams struct {
	ViewID          string
	Filter          *queryfilter.Filter
	StatisticFields []StatisticField
}

// resolveStatisticsParams merges the view's stored configuration, the caller
// filter override and the caller statistic requests into one descriptor.
//
// Caller-supplied functions take priority over the view's stored per-column
// default. A field contributes statistics only when it is not hidden in the
// view and at least one function resolved for it; duplicate
// (field, function) pairs collapse to one.
func (s *Service) resolveStatisticsParams(ctx context.Context, tableID string, req AggregationRequest, fields []*fieldmeta.Field) (*StatisticsParams, error) {
	var v *view.View
	if req.ViewID != "" {
		loaded, err := s.c.Views.LoadView(ctx, tableID, req.ViewID)
		if err != nil {
			return nil, err
		}
		v = loaded
	}

	targets := fields
	if len(req.FieldStats) > 0 || len(req.FieldIDs) > 0 {
		want := make(map[string]struct{}, len(req.FieldStats)+len(req.FieldIDs))
		for _, fs := range req.FieldStats {
			want[fs.FieldID] = struct{}{}
		}
		for _, id := range req.FieldIDs {
			want[id] = struct{}{}
		}
		targets = nil
		for _, f := range fields {
			if _, ok := want[f.ID]; ok {
				targets = append(targets, f)
			}
		}
	}

	var viewFilter *queryfilter.Filter
	if v != nil {
		viewFilter = v.Filter
	}
	params := &StatisticsParams{
		ViewID: req.ViewID,
		Filter: queryfilter.MergeWithDefaultFilter(viewFilter, req.Filter),
	}

	// Without a view or caller statistic requests there is nothing to
	// aggregate.
	if v == nil && len(req.FieldStats) == 0 {
		return params, nil
	}

	requested := make(map[string][]string, len(req.FieldStats))
	for _, fs := range req.FieldStats {
		requested[fs.FieldID] = append(requested[fs.FieldID], fs.StatisticFunc)
	}

	type pair struct {
		fieldID string
		fn      StatisticFunc
	}
	seen := make(map[pair]struct{})
	for _, f := range targets {
		if v != nil && v.ColumnMeta[f.ID].Hidden {
			continue
		}
		funcs := requested[f.ID]
		if len(funcs) == 0 && v != nil {
			if cm, ok := v.ColumnMeta[f.ID]; ok && cm.StatisticFunc != "" {
				funcs = []string{cm.StatisticFunc}
			}
		}
		for _, name := range funcs {
			fn, ok := ParseStatisticFunc(name)
			if !ok {
				level.Debug(s.logger).Log("msg", "unknown statistic function, skipping", "func", name, "field_id", f.ID)
				continue
			}
			p := pair{fieldID: f.ID, fn: fn}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			params.StatisticFields = append(params.StatisticFields, StatisticField{Field: f, StatisticFunc: fn})
		}
	}
	return params, nil
}
