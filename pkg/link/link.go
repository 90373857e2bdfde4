// Package link supports the two link-cell row-count modes: narrowing a query
// to rows eligible to be linked into a cell, and resolving the row ids
// already selected by a cell.
package link

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/eastonLua/teable/pkg/querybuild"
)

// CandidateSpec identifies a link cell whose candidate rows are requested:
// rows of the foreign table not yet linked into that cell.
type CandidateSpec struct {
	FieldID  string `json:"fieldId"`
	RecordID string `json:"recordId"`
}

// Selection identifies a link cell whose currently selected rows are
// requested.
type Selection struct {
	FieldID  string `json:"fieldId"`
	RecordID string `json:"recordId"`
}

// Narrower appends candidate-eligibility predicates to a query plan.
type Narrower interface {
	Narrow(ctx context.Context, plan querybuild.Plan, tableID string, spec CandidateSpec) (querybuild.Plan, error)
}

// SelectedResolver returns the row ids a link cell currently points at.
type SelectedResolver interface {
	IDsFor(ctx context.Context, sel Selection) ([]string, error)
}

// Store implements Narrower and SelectedResolver over the link junction
// tables, one junction table per link field.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// NewStore creates a link store.
func NewStore(db *sql.DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func junctionTable(fieldID string) string {
	return querybuild.QuoteIdent("junction_" + fieldID)
}

// Narrow excludes rows already linked into the cell.
func (s *Store) Narrow(_ context.Context, plan querybuild.Plan, _ string, spec CandidateSpec) (querybuild.Plan, error) {
	cond := sq.Expr(
		fmt.Sprintf(`"__id" NOT IN (SELECT to_id FROM %s WHERE from_id = ?)`, junctionTable(spec.FieldID)),
		spec.RecordID,
	)
	return plan.Where(cond), nil
}

// IDsFor loads the full selected-id list of the cell. A count query would be
// cheaper; callers only ever take len() of the result today, but the id-list
// shape is kept because other lookups share it.
func (s *Store) IDsFor(ctx context.Context, sel Selection) ([]string, error) {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("to_id").
		From("junction_" + sel.FieldID).
		Where(sq.Eq{"from_id": sel.RecordID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build selected ids query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "load selected ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan selected id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
