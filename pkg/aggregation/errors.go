package aggregation

import "fmt"

// GroupLimitError is returned when a grouping request would produce more
// distinct group points than the configured ceiling allows. The expensive
// grouped query is never issued in that case.
type GroupLimitError struct {
	Distinct int
	Limit    int
}

func (e *GroupLimitError) Error() string {
	return fmt.Sprintf(
		"grouping would produce %d group points, exceeding the limit of %d; remove a grouping field or narrow the filter",
		e.Distinct, e.Limit,
	)
}
