package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eastonLua/teable/pkg/aggregation"
	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
	"github.com/eastonLua/teable/pkg/tablemeta"
	"github.com/eastonLua/teable/pkg/view"
)

// newTestRouter wires the full service over a mocked database, the same way
// the binary does.
func newTestRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := log.NewNopLogger()
	svc := aggregation.NewService(aggregation.Config{MaxGroupPoints: 5000}, db, aggregation.Collaborators{
		Fields:       fieldmeta.NewCatalog(db, logger),
		Views:        view.NewStore(db, logger),
		Tables:       tablemeta.NewResolver(db, logger),
		Filters:      queryfilter.NewCompiler(logger),
		Sorts:        querysort.NewCompiler(logger),
		LinkNarrower: link.NewStore(db, logger),
		LinkSelected: link.NewStore(db, logger),
	}, prometheus.NewRegistry(), logger)

	r := mux.NewRouter()
	NewAPI(svc, logger).RegisterRoutes(r)
	return r, mock
}

func fieldRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "db_field_name", "type", "cell_value_type", "db_field_type"}).
		AddRow("fldAmount", "Amount", "amount", "number", "number", "double precision")
}

func TestRowCountEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT db_table_name FROM table_meta`).
		WithArgs("tbl1").
		WillReturnRows(sqlmock.NewRows([]string{"db_table_name"}).AddRow("visits"))
	mock.ExpectQuery(`FROM field`).
		WillReturnRows(fieldRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM visits`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/table/tbl1/aggregation/row-count", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rowCount": 12}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT db_table_name FROM table_meta`).
		WithArgs("tbl1").
		WillReturnRows(sqlmock.NewRows([]string{"db_table_name"}).AddRow("visits"))
	mock.ExpectQuery(`FROM field`).
		WillReturnRows(fieldRows())
	mock.ExpectQuery(`SELECT SUM\("amount"\) AS "fldAmount_sum" FROM \(SELECT \* FROM visits\) AS filtered`).
		WillReturnRows(sqlmock.NewRows([]string{"fldAmount_sum"}).AddRow(99.5))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		`/api/table/tbl1/aggregation?statisticFields=[{"fieldId":"fldAmount","statisticFunc":"sum"}]`, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"aggregations": [{"fieldId": "fldAmount", "total": {"value": 99.5, "aggFunc": "sum"}}]}`,
		rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationEndpointRejectsMalformedFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/table/tbl1/aggregation?filter=%7Bbroken", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownTableMapsToNotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT db_table_name FROM table_meta`).
		WithArgs("tblGhost").
		WillReturnRows(sqlmock.NewRows([]string{"db_table_name"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/table/tblGhost/aggregation/row-count", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErrorStatusMapping(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		expected int
	}{
		{name: "unknown table", err: errors.Wrap(tablemeta.ErrTableNotFound, "x"), expected: http.StatusNotFound},
		{name: "group limit", err: &aggregation.GroupLimitError{Distinct: 10, Limit: 5}, expected: http.StatusRequestEntityTooLarge},
		{name: "malformed stored filter", err: errors.Wrap(view.ErrMalformedFilter, "x"), expected: http.StatusBadRequest},
		{name: "bad request param", err: badRequest(errors.New("boom"), "filter"), expected: http.StatusBadRequest},
		{name: "anything else", err: errors.New("boom"), expected: http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, log.NewNopLogger(), tc.err)
			assert.Equal(t, tc.expected, rec.Code)
		})
	}
}
