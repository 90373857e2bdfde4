package aggregation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatConvertValue converts a raw scalar fetched from the store into the
// value handed to API consumers, then applies the function-specific
// overrides: dateRangeOfMonths replaces the "max,min" boundary pair with the
// month difference, and percent functions coerce an absent value to 0.
func formatConvertValue(raw interface{}, fn StatisticFunc) interface{} {
	v := convertValue(raw)
	if fn == StatDateRangeOfMonths {
		v = monthsBetween(v)
	}
	if fn.isPercent() && v == nil {
		v = float64(0)
	}
	return v
}

func convertValue(raw interface{}) interface{} {
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case int:
		return float64(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return convertText(string(v))
	case string:
		return convertText(v)
	default:
		return fmt.Sprint(v)
	}
}

// Numeric aggregates (SUM, AVG over numeric columns) arrive as text from the
// driver; anything that parses as a number is one.
func convertText(s string) interface{} {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// monthsBetween turns a "max,min" date-string pair into the number of full
// months between min and max, or 0 when either side is missing.
func monthsBetween(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return float64(0)
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return float64(0)
	}
	max, okMax := parseDate(parts[0])
	min, okMin := parseDate(parts[1])
	if !okMax || !okMin {
		return float64(0)
	}
	months := (max.Year()-min.Year())*12 + int(max.Month()) - int(min.Month())
	if max.Day() < min.Day() {
		months--
	}
	return float64(months)
}
