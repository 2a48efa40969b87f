package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		input string
		want  Operator
	}{
		{"eq", Equals},
		{"$eq", Equals},
		{"equals", Equals},
		{"$ne", NotEquals},
		{"not-equals", NotEquals},
		{"$gt", GreaterThan},
		{"gte", GreaterThanOrEqual},
		{"$lt", LessThan},
		{"$lte", LessThanOrEqual},
		{"$exists", Exists},
		{"$in", In},
		{"$nin", NotIn},
		{"not-in", NotIn},
		{"$regex", Regex},
		{"$like", Like},
		{"LIKE", Like},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOperator(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseOperator("$near")
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestParseNestedFieldsAndCombinators(t *testing.T) {
	tree, err := Parse(map[string]interface{}{
		"fields": map[string]interface{}{
			"total": map[string]interface{}{"operator": "$gt", "value": 10},
			"address": map[string]interface{}{
				"city": map[string]interface{}{"operator": "$eq", "value": "Oslo"},
			},
		},
		"or": []interface{}{
			map[string]interface{}{"fields": map[string]interface{}{
				"status": map[string]interface{}{"operator": "$in", "values": []interface{}{"open", "paid"}},
			}},
		},
		"not": []interface{}{
			map[string]interface{}{"fields": map[string]interface{}{
				"name": map[string]interface{}{"operator": "$regex", "value": "^x", "options": map[string]interface{}{"match": "i"}},
			}},
		},
	})
	require.NoError(t, err)

	require.Len(t, tree.Fields, 2)
	assert.Equal(t, "address.city", tree.Fields[0].Path)
	assert.Equal(t, "total", tree.Fields[1].Path)
	assert.Equal(t, GreaterThan, tree.Fields[1].Operator)

	require.Len(t, tree.Or, 1)
	assert.Equal(t, In, tree.Or[0].Fields[0].Operator)
	assert.Equal(t, []interface{}{"open", "paid"}, tree.Or[0].Fields[0].Values)

	require.Len(t, tree.Not, 1)
	assert.Equal(t, "i", tree.Not[0].Fields[0].Options.Match)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  interface{}
		want error
	}{
		{"unknown operator", map[string]interface{}{"fields": map[string]interface{}{
			"a": map[string]interface{}{"operator": "$near", "value": 1},
		}}, ErrUnknownOperator},
		{"in without values", map[string]interface{}{"fields": map[string]interface{}{
			"a": map[string]interface{}{"operator": "$in", "value": 1},
		}}, ErrValuesRequired},
		{"nin with scalar values", map[string]interface{}{"fields": map[string]interface{}{
			"a": map[string]interface{}{"operator": "$nin", "values": "x"},
		}}, ErrValuesRequired},
		{"unknown key", map[string]interface{}{"nor": []interface{}{}}, ErrInvalidFilter},
		{"not an object", "fields", ErrInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSortAndPage(t *testing.T) {
	keys, err := ParseSort(map[string]interface{}{"field": "total", "order": "desc"})
	require.NoError(t, err)
	assert.Equal(t, []Sort{{Field: "total", Order: Desc}}, keys)

	keys, err = ParseSort([]interface{}{
		map[string]interface{}{"field": "status"},
		map[string]interface{}{"field": "total", "order": "asc"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Sort{{Field: "status", Order: Asc}, {Field: "total", Order: Asc}}, keys)

	_, err = ParseSort(map[string]interface{}{"field": "total", "order": "sideways"})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	page, err := ParsePage(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, Page{Skip: 0, Limit: 100}, page)

	page, err = ParsePage(map[string]interface{}{"skip": 5, "limit": 2})
	require.NoError(t, err)
	assert.Equal(t, Page{Skip: 5, Limit: 2}, page)

	page, err = ParsePage(map[string]interface{}{"limit": 0})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, page.Limit, "zero does not lift the limit")

	_, err = ParsePage(map[string]interface{}{"skip": -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = ParsePage(map[string]interface{}{"limit": -5})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestEvaluate(t *testing.T) {
	row := map[string]interface{}{
		"_id":    "1",
		"name":   "Widget",
		"total":  42.5,
		"count":  3,
		"status": "open",
		"tags":   []interface{}{"red", "blue"},
		"memo":   "first\nsecond",
		"address": map[string]interface{}{
			"city": "Oslo",
		},
	}

	tests := []struct {
		name string
		tree *Tree
		want bool
	}{
		{"nil tree", nil, true},
		{"equals", &Tree{Fields: []Predicate{{Path: "name", Operator: Equals, Value: "Widget"}}}, true},
		{"equals numeric kinds", &Tree{Fields: []Predicate{{Path: "count", Operator: Equals, Value: 3.0}}}, true},
		{"not equals", &Tree{Fields: []Predicate{{Path: "name", Operator: NotEquals, Value: "Widget"}}}, false},
		{"gt", &Tree{Fields: []Predicate{{Path: "total", Operator: GreaterThan, Value: 40}}}, true},
		{"lte", &Tree{Fields: []Predicate{{Path: "total", Operator: LessThanOrEqual, Value: 42.5}}}, true},
		{"lt", &Tree{Fields: []Predicate{{Path: "total", Operator: LessThan, Value: 42.5}}}, false},
		{"exists", &Tree{Fields: []Predicate{{Path: "status", Operator: Exists}}}, true},
		{"missing exists", &Tree{Fields: []Predicate{{Path: "missing", Operator: Exists}}}, false},
		{"in", &Tree{Fields: []Predicate{{Path: "status", Operator: In, Values: []interface{}{"open", "paid"}}}}, true},
		{"not in", &Tree{Fields: []Predicate{{Path: "status", Operator: NotIn, Values: []interface{}{"open"}}}}, false},
		{"list element equals", &Tree{Fields: []Predicate{{Path: "tags", Operator: Equals, Value: "blue"}}}, true},
		{"nested path", &Tree{Fields: []Predicate{{Path: "address.city", Operator: Equals, Value: "Oslo"}}}, true},
		{"regex with flags", &Tree{Fields: []Predicate{{Path: "name", Operator: Regex, Value: "^wid", Options: Options{Match: "i"}}}}, true},
		{"regex case sensitive", &Tree{Fields: []Predicate{{Path: "name", Operator: Regex, Value: "^wid"}}}, false},
		{"like", &Tree{Fields: []Predicate{{Path: "name", Operator: Like, Value: "Wid%"}}}, true},
		{"like is anchored", &Tree{Fields: []Predicate{{Path: "name", Operator: Like, Value: "idg%"}}}, false},
		{"like single char", &Tree{Fields: []Predicate{{Path: "name", Operator: Like, Value: "W_dget"}}}, true},
		{"like spans lines", &Tree{Fields: []Predicate{{Path: "memo", Operator: Like, Value: "first%"}}}, true},
		{"like single char newline", &Tree{Fields: []Predicate{{Path: "memo", Operator: Like, Value: "first_second"}}}, true},
		{"or", &Tree{Or: []*Tree{
			{Fields: []Predicate{{Path: "status", Operator: Equals, Value: "closed"}}},
			{Fields: []Predicate{{Path: "total", Operator: GreaterThan, Value: 1}}},
		}}, true},
		{"not", &Tree{Not: []*Tree{
			{Fields: []Predicate{{Path: "status", Operator: Equals, Value: "closed"}}},
			{Fields: []Predicate{{Path: "total", Operator: LessThan, Value: 1}}},
		}}, true},
		{"not any matching", &Tree{Not: []*Tree{
			{Fields: []Predicate{{Path: "status", Operator: Equals, Value: "closed"}}},
			{Fields: []Predicate{{Path: "status", Operator: Equals, Value: "open"}}},
		}}, false},
		{"fields and combinator are joined", &Tree{
			Fields: []Predicate{{Path: "status", Operator: Equals, Value: "open"}},
			Or: []*Tree{
				{Fields: []Predicate{{Path: "total", Operator: GreaterThan, Value: 100}}},
			},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.tree, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlattenFind(t *testing.T) {
	flat := FlattenFind(map[string]interface{}{
		"status":  "open",
		"address": map[string]interface{}{"city": "Oslo"},
		"items": []interface{}{
			map[string]interface{}{"sku": "A1"},
			map[string]interface{}{"sku": "B2"},
		},
		"tags": []interface{}{"red", "blue"},
	})

	assert.Equal(t, map[string]interface{}{
		"status":       "open",
		"address.city": "Oslo",
		"items.sku":    "A1",
		"tags":         []interface{}{"red", "blue"},
	}, flat)

	tree := FindTree(map[string]interface{}{"status": "open", "tags": []interface{}{"red"}})
	require.Len(t, tree.Fields, 2)
	assert.Equal(t, Equals, tree.Fields[0].Operator)
	assert.Equal(t, In, tree.Fields[1].Operator)

	assert.Nil(t, FindTree(nil))
}

func TestAndDropsEmptyTrees(t *testing.T) {
	a := &Tree{Fields: []Predicate{{Path: "a", Operator: Exists}}}
	assert.Nil(t, And(nil, &Tree{}))
	assert.Same(t, a, And(nil, a))
	assert.Len(t, And(a, a).And, 2)
}
