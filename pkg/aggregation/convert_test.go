package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatConvertValue(t *testing.T) {
	for _, tc := range []struct {
		name     string
		raw      interface{}
		fn       StatisticFunc
		expected interface{}
	}{
		{name: "float passes through", raw: 42.5, fn: StatSum, expected: 42.5},
		{name: "integer widens to float", raw: int64(7), fn: StatCount, expected: float64(7)},
		{name: "numeric text parses", raw: []byte("12.25"), fn: StatAverage, expected: 12.25},
		{name: "plain text stays text", raw: "hello", fn: StatMax, expected: "hello"},
		{
			name:     "timestamp renders RFC 3339",
			raw:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			fn:       StatMax,
			expected: "2024-03-15T10:30:00Z",
		},
		{name: "absent non-percent value stays absent", raw: nil, fn: StatSum, expected: nil},
		{name: "absent percent value becomes zero", raw: nil, fn: StatPercentEmpty, expected: float64(0)},
		{name: "absent percent unchecked becomes zero", raw: nil, fn: StatPercentUnChecked, expected: float64(0)},
		{
			name:     "month range spans two full months",
			raw:      "2024-03-15,2024-01-01",
			fn:       StatDateRangeOfMonths,
			expected: float64(2),
		},
		{
			name:     "month range rounds down on a shorter final month",
			raw:      "2024-03-10,2024-01-15",
			fn:       StatDateRangeOfMonths,
			expected: float64(1),
		},
		{name: "one sided month range is zero", raw: ",2024-01-01", fn: StatDateRangeOfMonths, expected: float64(0)},
		{name: "absent month range is zero", raw: nil, fn: StatDateRangeOfMonths, expected: float64(0)},
		{name: "unparseable month range is zero", raw: "later,sooner", fn: StatDateRangeOfMonths, expected: float64(0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, formatConvertValue(tc.raw, tc.fn))
		})
	}
}
