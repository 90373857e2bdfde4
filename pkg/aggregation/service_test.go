package aggregation

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/link"
	"github.com/eastonLua/teable/pkg/querybuild"
	"github.com/eastonLua/teable/pkg/queryfilter"
	"github.com/eastonLua/teable/pkg/querysort"
	"github.com/eastonLua/teable/pkg/view"
)

type fakeCatalog struct {
	fields []*fieldmeta.Field
}

func (f *fakeCatalog) LoadFields(_ context.Context, _ string, _ ...string) ([]*fieldmeta.Field, error) {
	return f.fields, nil
}

type fakeViews struct {
	view *view.View
}

func (f *fakeViews) LoadView(_ context.Context, _, _ string) (*view.View, error) {
	return f.view, nil
}

type fakeTables struct {
	name string
}

func (f *fakeTables) TableNameFor(_ context.Context, _ string) (string, error) {
	return f.name, nil
}

type fakeSelected struct {
	ids []string
}

func (f *fakeSelected) IDsFor(_ context.Context, _ link.Selection) ([]string, error) {
	return f.ids, nil
}

type fakeNarrower struct{}

func (fakeNarrower) Narrow(_ context.Context, plan querybuild.Plan, _ string, _ link.CandidateSpec) (querybuild.Plan, error) {
	return plan, nil
}

func newTestService(t *testing.T, cfg Config, fields []*fieldmeta.Field, v *view.View, selectedIDs []string) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := log.NewNopLogger()
	svc := NewService(cfg, db, Collaborators{
		Fields:       &fakeCatalog{fields: fields},
		Views:        &fakeViews{view: v},
		Tables:       &fakeTables{name: "visits"},
		Filters:      queryfilter.NewCompiler(logger),
		Sorts:        querysort.NewCompiler(logger),
		LinkNarrower: fakeNarrower{},
		LinkSelected: &fakeSelected{ids: selectedIDs},
	}, prometheus.NewRegistry(), logger)
	return svc, mock
}

func textField(id, name, col string) *fieldmeta.Field {
	return &fieldmeta.Field{
		ID: id, Name: name, DBFieldName: col,
		Type: fieldmeta.TypeSingleLineText, CellValueType: fieldmeta.CellValueString, DBType: fieldmeta.DBTypeText,
	}
}

func numberField(id, name, col string) *fieldmeta.Field {
	return &fieldmeta.Field{
		ID: id, Name: name, DBFieldName: col,
		Type: fieldmeta.TypeNumber, CellValueType: fieldmeta.CellValueNumber, DBType: fieldmeta.DBTypeDouble,
	}
}

func TestComputeAggregations(t *testing.T) {
	fields := []*fieldmeta.Field{numberField("fldNum", "Amount", "amount")}

	t.Run("single statistic", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`SELECT SUM\("amount"\) AS "fldNum_sum" FROM \(SELECT \* FROM visits\) AS filtered`).
			WillReturnRows(sqlmock.NewRows([]string{"fldNum_sum"}).AddRow(42.5))

		result, err := svc.ComputeAggregations(context.Background(), "tbl1", AggregationRequest{
			FieldStats: []FieldStat{{FieldID: "fldNum", StatisticFunc: "sum"}},
		})
		require.NoError(t, err)
		require.Len(t, result.Aggregations, 1)
		require.Equal(t, "fldNum", result.Aggregations[0].FieldID)
		require.Equal(t, StatSum, result.Aggregations[0].Total.AggFunc)
		require.Equal(t, 42.5, result.Aggregations[0].Total.Value)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate field stat pairs collapse", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`SELECT SUM\("amount"\) AS "fldNum_sum" FROM`).
			WillReturnRows(sqlmock.NewRows([]string{"fldNum_sum"}).AddRow(10.0))

		result, err := svc.ComputeAggregations(context.Background(), "tbl1", AggregationRequest{
			FieldStats: []FieldStat{
				{FieldID: "fldNum", StatisticFunc: "sum"},
				{FieldID: "fldNum", StatisticFunc: "sum"},
			},
		})
		require.NoError(t, err)
		require.Len(t, result.Aggregations, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty statistic field list issues no query", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)

		result, err := svc.ComputeAggregations(context.Background(), "tbl1", AggregationRequest{})
		require.NoError(t, err)
		require.Empty(t, result.Aggregations)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("percent statistic with no rows decodes to zero", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`AS "fldNum_percentFilled" FROM`).
			WillReturnRows(sqlmock.NewRows([]string{"fldNum_percentFilled"}).AddRow(nil))

		result, err := svc.ComputeAggregations(context.Background(), "tbl1", AggregationRequest{
			FieldStats: []FieldStat{{FieldID: "fldNum", StatisticFunc: "percentFilled"}},
		})
		require.NoError(t, err)
		require.Len(t, result.Aggregations, 1)
		require.Equal(t, float64(0), result.Aggregations[0].Total.Value)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unrecognized result column is dropped", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`AS "fldNum_sum" FROM`).
			WillReturnRows(sqlmock.NewRows([]string{"fldNum_sum", "bogus"}).AddRow(1.0, "x"))

		result, err := svc.ComputeAggregations(context.Background(), "tbl1", AggregationRequest{
			FieldStats: []FieldStat{{FieldID: "fldNum", StatisticFunc: "sum"}},
		})
		require.NoError(t, err)
		require.Len(t, result.Aggregations, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCountRows(t *testing.T) {
	fields := []*fieldmeta.Field{textField("fldStatus", "Status", "status")}

	t.Run("plain count", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM visits`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		result, err := svc.CountRows(context.Background(), "tbl1", RowCountRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(7), result.RowCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filtered count", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, nil)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM visits WHERE \("status" = \$1\)`).
			WithArgs("A").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		result, err := svc.CountRows(context.Background(), "tbl1", RowCountRequest{
			Filter: &queryfilter.Filter{
				Conjunction: queryfilter.And,
				Set:         []queryfilter.Item{{FieldID: "fldStatus", Operator: queryfilter.OpIs, Value: "A"}},
			},
		})
		require.NoError(t, err)
		require.Equal(t, int64(2), result.RowCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("selected link ids bypass the query path", func(t *testing.T) {
		svc, mock := newTestService(t, Config{MaxGroupPoints: 5000}, fields, nil, []string{"a", "b", "c", "d", "e"})

		result, err := svc.CountRows(context.Background(), "tbl1", RowCountRequest{
			FilterLinkCellSelected: &link.Selection{FieldID: "fldLink", RecordID: "rec1"},
		})
		require.NoError(t, err)
		require.Equal(t, int64(5), result.RowCount)
		// No SQL must have been issued.
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
