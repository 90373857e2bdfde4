package fieldmeta

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Catalog loads field descriptors from the metadata store.
type Catalog struct {
	db     *sql.DB
	logger log.Logger
}

// NewCatalog creates a field catalog over the given metadata database.
func NewCatalog(db *sql.DB, logger log.Logger) *Catalog {
	return &Catalog{db: db, logger: logger}
}

// LoadFields returns the field descriptors of a table in creation order.
// When ids are given only those fields are returned; unknown ids are simply
// absent from the result.
func (c *Catalog) LoadFields(ctx context.Context, tableID string, ids ...string) ([]*Field, error) {
	b := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "name", "db_field_name", "type", "cell_value_type", "db_field_type").
		From("field").
		Where(sq.Eq{"table_id": tableID}).
		Where(sq.Eq{"deleted_time": nil}).
		OrderBy("created_time ASC")
	if len(ids) > 0 {
		b = b.Where(sq.Eq{"id": ids})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build field query")
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		level.Error(c.logger).Log("msg", "field query failed", "table_id", tableID, "err", err)
		return nil, errors.Wrap(err, "load fields")
	}
	defer rows.Close()

	var fields []*Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.ID, &f.Name, &f.DBFieldName, &f.Type, &f.CellValueType, &f.DBType); err != nil {
			return nil, errors.Wrap(err, "scan field row")
		}
		fields = append(fields, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate field rows")
	}
	return fields, nil
}
