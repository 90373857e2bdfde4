// Package tablemeta resolves a logical table id to its physical storage
// table name.
package tablemeta

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

// ErrTableNotFound marks an unknown or deleted table id.
var ErrTableNotFound = errors.New("table not found")

// Resolver maps table ids to physical table names.
type Resolver struct {
	db     *sql.DB
	logger log.Logger
}

// NewResolver creates a table resolver.
func NewResolver(db *sql.DB, logger log.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// TableNameFor returns the physical table name backing the given table id.
func (r *Resolver) TableNameFor(ctx context.Context, tableID string) (string, error) {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("db_table_name").
		From("table_meta").
		Where(sq.Eq{"id": tableID}).
		Where(sq.Eq{"deleted_time": nil}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, "build table query")
	}

	var name string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&name)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(ErrTableNotFound, "table %s", tableID)
	}
	if err != nil {
		return "", errors.Wrap(err, "resolve table name")
	}
	return name, nil
}
