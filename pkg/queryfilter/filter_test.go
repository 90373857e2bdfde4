package queryfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("empty string yields nil", func(t *testing.T) {
		f, err := Parse("")
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("nested tree", func(t *testing.T) {
		f, err := Parse(`{
			"conjunction": "and",
			"filterSet": [
				{"fieldId": "fldA", "operator": "is", "value": "x"},
				{"conjunction": "or", "filterSet": [
					{"fieldId": "fldB", "operator": "isGreater", "value": 3}
				]}
			]
		}`)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, And, f.Conjunction)
		require.Len(t, f.Set, 2)
		assert.Equal(t, "fldA", f.Set[0].FieldID)
		assert.Equal(t, OpIs, f.Set[0].Operator)
		require.Len(t, f.Set[1].Set, 1)
		assert.Equal(t, Or, f.Set[1].Conjunction)
	})

	t.Run("malformed input errors", func(t *testing.T) {
		_, err := Parse("{not json")
		require.Error(t, err)
	})
}

func TestMergeWithDefaultFilter(t *testing.T) {
	base := &Filter{Conjunction: Or, Set: []Item{{FieldID: "fldA", Operator: OpIs, Value: 1}}}
	override := &Filter{Conjunction: And, Set: []Item{{FieldID: "fldB", Operator: OpIs, Value: 2}}}

	t.Run("both nil", func(t *testing.T) {
		assert.Nil(t, MergeWithDefaultFilter(nil, nil))
	})

	t.Run("only base", func(t *testing.T) {
		assert.Equal(t, base, MergeWithDefaultFilter(base, nil))
	})

	t.Run("only override", func(t *testing.T) {
		assert.Equal(t, override, MergeWithDefaultFilter(nil, override))
	})

	t.Run("both wrap under and", func(t *testing.T) {
		merged := MergeWithDefaultFilter(base, override)
		require.NotNil(t, merged)
		assert.Equal(t, And, merged.Conjunction)
		require.Len(t, merged.Set, 2)
		assert.Equal(t, Or, merged.Set[0].Conjunction)
		assert.Equal(t, base.Set, merged.Set[0].Set)
		assert.Equal(t, And, merged.Set[1].Conjunction)
		assert.Equal(t, override.Set, merged.Set[1].Set)
	})
}
