// Package queryfilter defines the composable filter expression tree applied
// to record queries and compiles it to SQL predicates.
package queryfilter

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Conjunction combines the items of one filter level.
type Conjunction string

const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

// Operator names a field predicate.
type Operator string

const (
	OpIs             Operator = "is"
	OpIsNot          Operator = "isNot"
	OpContains       Operator = "contains"
	OpDoesNotContain Operator = "doesNotContain"
	OpIsEmpty        Operator = "isEmpty"
	OpIsNotEmpty     Operator = "isNotEmpty"
	OpIsGreater      Operator = "isGreater"
	OpIsGreaterEqual Operator = "isGreaterEqual"
	OpIsLess         Operator = "isLess"
	OpIsLessEqual    Operator = "isLessEqual"
	OpIsAnyOf        Operator = "isAnyOf"
	OpIsNoneOf       Operator = "isNoneOf"
)

// Me is the placeholder value resolved against the acting identity at
// compile time, e.g. a user field filtered with {operator: is, value: Me}.
const Me = "Me"

// Item is one node of a filter level: either a field predicate (FieldID and
// Operator set) or a nested group (Conjunction and Set set).
type Item struct {
	FieldID  string      `json:"fieldId,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`

	Conjunction Conjunction `json:"conjunction,omitempty"`
	Set         []Item      `json:"filterSet,omitempty"`
}

func (i *Item) isGroup() bool { return len(i.Set) > 0 }

// Filter is the root of a filter expression tree.
type Filter struct {
	Conjunction Conjunction `json:"conjunction"`
	Set         []Item      `json:"filterSet"`
}

// Parse decodes a JSON filter tree. An empty string yields nil.
func Parse(raw string) (*Filter, error) {
	if raw == "" {
		return nil, nil
	}
	var f Filter
	if err := json.UnmarshalFromString(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse filter")
	}
	return &f, nil
}

// MergeWithDefaultFilter combines a view's stored filter with a caller
// override into one effective filter: both present yields an AND of the two,
// one present yields that one unchanged, neither yields nil.
func MergeWithDefaultFilter(base, override *Filter) *Filter {
	switch {
	case base == nil:
		return override
	case override == nil:
		return base
	}
	return &Filter{
		Conjunction: And,
		Set: []Item{
			{Conjunction: base.Conjunction, Set: base.Set},
			{Conjunction: override.Conjunction, Set: override.Set},
		},
	}
}
