// Package view loads per-view configuration: the stored filter, column
// visibility and default statistic functions, and the stored group spec.
package view

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedFilter marks a stored view filter that failed to parse.
var ErrMalformedFilter = errors.New("malformed stored view filter")

// Type is the view kind.
type Type string

const (
	TypeGrid    Type = "grid"
	TypeGantt   Type = "gantt"
	TypeKanban  Type = "kanban"
	TypeForm    Type = "form"
	TypeGallery Type = "gallery"
)

// ColumnMeta is the per-column configuration stored on a view.
type ColumnMeta struct {
	Hidden        bool   `json:"hidden,omitempty"`
	StatisticFunc string `json:"statisticFunc,omitempty"`
}

// View is the loaded configuration of one view.
type View struct {
	ID         string
	Type       Type
	Filter     *queryfilter.Filter
	ColumnMeta map[string]ColumnMeta
	Group      []querysort.SortKey
}

// Store loads views from the metadata store.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// NewStore creates a view store.
func NewStore(db *sql.DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// LoadView returns the view's stored configuration, restricted to grid and
// gantt views and excluding soft-deleted ones. A miss returns (nil, nil):
// callers treat the absence of a view as "no view context", not an error.
func (s *Store) LoadView(ctx context.Context, tableID, viewID string) (*View, error) {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "type", "filter", "column_meta", `"group"`).
		From("view").
		Where(sq.Eq{"table_id": tableID, "id": viewID}).
		Where(sq.Eq{"deleted_time": nil}).
		Where(sq.Eq{"type": []Type{TypeGrid, TypeGantt}}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build view query")
	}

	var (
		v          View
		rawFilter  sql.NullString
		rawColMeta sql.NullString
		rawGroup   sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&v.ID, &v.Type, &rawFilter, &rawColMeta, &rawGroup)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		level.Error(s.logger).Log("msg", "view query failed", "table_id", tableID, "view_id", viewID, "err", err)
		return nil, errors.Wrap(err, "load view")
	}

	if rawFilter.Valid && rawFilter.String != "" {
		v.Filter, err = queryfilter.Parse(rawFilter.String)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedFilter, "view %s: %v", viewID, err)
		}
	}
	if rawColMeta.Valid && rawColMeta.String != "" {
		if err := json.UnmarshalFromString(rawColMeta.String, &v.ColumnMeta); err != nil {
			return nil, errors.Wrapf(err, "decode column meta of view %s", viewID)
		}
	}
	if rawGroup.Valid && rawGroup.String != "" {
		if err := json.UnmarshalFromString(rawGroup.String, &v.Group); err != nil {
			return nil, errors.Wrapf(err, "decode group spec of view %s", viewID)
		}
	}
	return &v, nil
}
