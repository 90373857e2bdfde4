package aggregation

import (
	"fmt"

	"github.com/eastonLua/teable/pkg/fieldmeta"
	"github.com/eastonLua/teable/pkg/querybuild"
)

// StatisticFunc names one aggregation operation applicable to a field.
type StatisticFunc string

const (
	StatCount               StatisticFunc = "count"
	StatEmpty               StatisticFunc = "empty"
	StatFilled              StatisticFunc = "filled"
	StatUnique              StatisticFunc = "unique"
	StatMax                 StatisticFunc = "max"
	StatMin                 StatisticFunc = "min"
	StatSum                 StatisticFunc = "sum"
	StatAverage             StatisticFunc = "average"
	StatChecked             StatisticFunc = "checked"
	StatUnChecked           StatisticFunc = "unChecked"
	StatPercentEmpty        StatisticFunc = "percentEmpty"
	StatPercentFilled       StatisticFunc = "percentFilled"
	StatPercentUnique       StatisticFunc = "percentUnique"
	StatPercentChecked      StatisticFunc = "percentChecked"
	StatPercentUnChecked    StatisticFunc = "percentUnChecked"
	StatEarliestDate        StatisticFunc = "earliestDate"
	StatLatestDate          StatisticFunc = "latestDate"
	StatDateRangeOfDays     StatisticFunc = "dateRangeOfDays"
	StatDateRangeOfMonths   StatisticFunc = "dateRangeOfMonths"
	StatTotalAttachmentSize StatisticFunc = "totalAttachmentSize"
)

var statisticFuncs = map[StatisticFunc]struct{}{
	StatCount: {}, StatEmpty: {}, StatFilled: {}, StatUnique: {},
	StatMax: {}, StatMin: {}, StatSum: {}, StatAverage: {},
	StatChecked: {}, StatUnChecked: {},
	StatPercentEmpty: {}, StatPercentFilled: {}, StatPercentUnique: {},
	StatPercentChecked: {}, StatPercentUnChecked: {},
	StatEarliestDate: {}, StatLatestDate: {},
	StatDateRangeOfDays: {}, StatDateRangeOfMonths: {},
	StatTotalAttachmentSize: {},
}

// ParseStatisticFunc validates a statistic-function name.
func ParseStatisticFunc(s string) (StatisticFunc, bool) {
	fn := StatisticFunc(s)
	_, ok := statisticFuncs[fn]
	return fn, ok
}

func (f StatisticFunc) isPercent() bool {
	switch f {
	case StatPercentEmpty, StatPercentFilled, StatPercentUnique, StatPercentChecked, StatPercentUnChecked:
		return true
	}
	return false
}

// statisticExpr returns the SQL aggregate expression computing f over the
// field's storage column. The second return is false for unknown functions.
func statisticExpr(f StatisticFunc, field *fieldmeta.Field) (string, bool) {
	col := querybuild.QuoteIdent(field.DBFieldName)
	// Distinct-counting or comparing structured values is undefined; cast to
	// text first.
	textCol := col
	if field.IsJSON() {
		textCol = col + "::text"
	}

	switch f {
	case StatCount:
		return "COUNT(*)", true
	case StatEmpty:
		return fmt.Sprintf("COUNT(*) - COUNT(%s)", col), true
	case StatFilled:
		return fmt.Sprintf("COUNT(%s)", col), true
	case StatUnique:
		return fmt.Sprintf("COUNT(DISTINCT %s)", textCol), true
	case StatMax, StatLatestDate:
		return fmt.Sprintf("MAX(%s)", col), true
	case StatMin, StatEarliestDate:
		return fmt.Sprintf("MIN(%s)", col), true
	case StatSum:
		return fmt.Sprintf("SUM(%s)", col), true
	case StatAverage:
		return fmt.Sprintf("AVG(%s)", col), true
	case StatChecked:
		return fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", col), true
	case StatUnChecked:
		return fmt.Sprintf("COUNT(*) - COUNT(*) FILTER (WHERE %s)", col), true
	case StatPercentEmpty:
		return fmt.Sprintf("(COUNT(*) - COUNT(%s)) * 100.0 / NULLIF(COUNT(*), 0)", col), true
	case StatPercentFilled:
		return fmt.Sprintf("COUNT(%s) * 100.0 / NULLIF(COUNT(*), 0)", col), true
	case StatPercentUnique:
		return fmt.Sprintf("COUNT(DISTINCT %s) * 100.0 / NULLIF(COUNT(*), 0)", textCol), true
	case StatPercentChecked:
		return fmt.Sprintf("(COUNT(*) FILTER (WHERE %s)) * 100.0 / NULLIF(COUNT(*), 0)", col), true
	case StatPercentUnChecked:
		return fmt.Sprintf("(COUNT(*) - COUNT(*) FILTER (WHERE %s)) * 100.0 / NULLIF(COUNT(*), 0)", col), true
	case StatDateRangeOfDays:
		return fmt.Sprintf("MAX(%s)::date - MIN(%s)::date", col, col), true
	case StatDateRangeOfMonths:
		// The month difference is computed after the fetch; the query returns
		// the boundary pair.
		return fmt.Sprintf("CONCAT(MAX(%s), ',', MIN(%s))", col, col), true
	case StatTotalAttachmentSize:
		return fmt.Sprintf(
			"SUM((SELECT COALESCE(SUM((elem->>'size')::numeric), 0) FROM jsonb_array_elements(%s) AS elem))",
			col,
		), true
	}
	return "", false
}
