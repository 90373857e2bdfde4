package aggregation

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/actor"
	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/querybuild"
	"github.com/eastonLua/teable/pkg/queryfilter"
)

// RowCountRequest selects what to count.
type RowCountRequest struct {
	ViewID                  string
	Filter                  *queryfilter.Filter
	FilterLinkCellCandidate *link.CandidateSpec
	FilterLinkCellSelected  *link.Selection
}

// RowCountResult is the response of CountRows.
type RowCountResult struct {
	RowCount int64 `json:"rowCount"`
}

// CountRows counts the rows matching the effective filter. A selected-link
// request bypasses query construction entirely and returns the cardinality
// of the cell's id set.
func (s *Service) CountRows(ctx context.Context, tableID string, req RowCountRequest) (*RowCountResult, error) {
	if req.FilterLinkCellSelected != nil {
		ids, err := s.c.LinkSelected.IDsFor(ctx, *req.FilterLinkCellSelected)
		if err != nil {
			return nil, err
		}
		return &RowCountResult{RowCount: int64(len(ids))}, nil
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

	filter := req.Filter
	if req.ViewID != "" {
		v, err := s.c.Views.LoadView(ctx, tableID, req.ViewID)
		if err != nil {
			return nil, err
		}
		if v != nil {
			filter = queryfilter.MergeWithDefaultFilter(v.Filter, req.Filter)
		}
	}

	plan := querybuild.NewPlan(tableName)
	plan, err = s.c.Filters.Apply(plan, fieldSet, filter, actor.From(ctx))
	if err != nil {
		return nil, err
	}
	if req.FilterLinkCellCandidate != nil {
		plan, err = s.c.LinkNarrower.Narrow(ctx, plan, tableID, *req.FilterLinkCellCandidate)
		if err != nil {
			return nil, err
		}
	}

	// ToCountSQL drops any select, order, group, limit or offset state a
	// collaborator stage may have left on the plan.
	query, args, err := plan.ToCountSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build row count query")
	}
	level.Debug(s.logger).Log("msg", "executing row count query", "table_id", tableID, "query", query)

	defer s.observe("row_count", time.Now())
	var count int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err == sql.ErrNoRows {
		return &RowCountResult{RowCount: 0}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "execute row count query")
	}
	return &RowCountResult{RowCount: count}, nil
}
