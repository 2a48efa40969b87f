package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

func TestCompilePredicates(t *testing.T) {
	c := NewCompiler(nil)

	tests := []struct {
		name string
		pred filter.Predicate
		want bson.M
	}{
		{"equals", filter.Predicate{Path: "status", Operator: filter.Equals, Value: "open"},
			bson.M{"status": bson.M{"$eq": "open"}}},
		{"not equals", filter.Predicate{Path: "status", Operator: filter.NotEquals, Value: "open"},
			bson.M{"status": bson.M{"$ne": "open"}}},
		{"gte", filter.Predicate{Path: "total", Operator: filter.GreaterThanOrEqual, Value: 10},
			bson.M{"total": bson.M{"$gte": 10}}},
		{"exists ignores value", filter.Predicate{Path: "note", Operator: filter.Exists, Value: false},
			bson.M{"note": bson.M{"$exists": true, "$ne": nil}}},
		{"in", filter.Predicate{Path: "status", Operator: filter.In, Values: []interface{}{"a", "b"}},
			bson.M{"status": bson.M{"$in": bson.A{"a", "b"}}}},
		{"not in", filter.Predicate{Path: "status", Operator: filter.NotIn, Values: []interface{}{"a"}},
			bson.M{"status": bson.M{"$nin": bson.A{"a"}}}},
		{"regex with options", filter.Predicate{Path: "name", Operator: filter.Regex, Value: "^w", Options: filter.Options{Match: "ix"}},
			bson.M{"name": bson.M{"$regex": "^w", "$options": "i"}}},
		{"like", filter.Predicate{Path: "name", Operator: filter.Like, Value: "W%"},
			bson.M{"name": bson.M{"$regex": "(?s)^W.*$"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compile(&filter.Tree{Fields: []filter.Predicate{tt.pred}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileCombinators(t *testing.T) {
	c := NewCompiler(nil)

	got, err := c.Compile(&filter.Tree{
		Fields: []filter.Predicate{{Path: "total", Operator: filter.GreaterThan, Value: 1}},
		Or: []*filter.Tree{
			{Fields: []filter.Predicate{{Path: "status", Operator: filter.Equals, Value: "open"}}},
			{Fields: []filter.Predicate{{Path: "status", Operator: filter.Equals, Value: "paid"}}},
		},
		Not: []*filter.Tree{
			{Fields: []filter.Predicate{{Path: "tags", Operator: filter.Equals, Value: "spam"}}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"total": bson.M{"$gt": 1}},
		bson.M{"$or": bson.A{
			bson.M{"status": bson.M{"$eq": "open"}},
			bson.M{"status": bson.M{"$eq": "paid"}},
		}},
		bson.M{"$nor": bson.A{
			bson.M{"tags": bson.M{"$eq": "spam"}},
		}},
	}}, got)

	empty, err := c.Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, empty)
}

func TestCompileErrors(t *testing.T) {
	c := NewCompiler(nil)

	_, err := c.Compile(&filter.Tree{Fields: []filter.Predicate{{Path: "a", Operator: filter.In}}})
	assert.ErrorIs(t, err, filter.ErrValuesRequired)

	_, err = c.Compile(&filter.Tree{Fields: []filter.Predicate{{Path: "a", Operator: filter.Operator(99)}}})
	assert.ErrorIs(t, err, filter.ErrUnknownOperator)
}

func TestCompileFindFlattens(t *testing.T) {
	c := NewCompiler(nil)
	got, err := c.CompileFind(map[string]interface{}{
		"address": map[string]interface{}{"city": "Oslo"},
		"tags":    []interface{}{"red", "blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"address.city": bson.M{"$eq": "Oslo"}},
		bson.M{"tags": bson.M{"$in": bson.A{"red", "blue"}}},
	}}, got)
}

func TestObjectIDCoercion(t *testing.T) {
	hex := "64b7f0c2a1b2c3d4e5f60718"
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)

	c := NewCompiler(CoerceObjectID)

	got, err := c.CompileQuery(storage.Query{Find: map[string]interface{}{"_id": hex}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": bson.M{"$eq": oid}}, got)

	got, err = c.Compile(&filter.Tree{Fields: []filter.Predicate{
		{Path: "_id", Operator: filter.NotIn, Values: []interface{}{hex, "not-an-id"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": bson.M{"$nin": bson.A{oid, "not-an-id"}}}, got)

	got, err = c.Compile(&filter.Tree{Fields: []filter.Predicate{
		{Path: "owner_id", Operator: filter.Equals, Value: hex},
	}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"owner_id": bson.M{"$eq": hex}}, got, "only the primary key is coerced")
}

func TestCompileSort(t *testing.T) {
	assert.Nil(t, CompileSort(nil))
	assert.Equal(t, bson.D{{Key: "status", Value: 1}, {Key: "total", Value: -1}},
		CompileSort([]filter.Sort{{Field: "status"}, {Field: "total", Order: filter.Desc}}))
}

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	got := normalizeDoc(bson.M{
		"_id":   oid,
		"n":     int32(3),
		"inner": bson.D{{Key: "a", Value: bson.A{int32(1)}}},
	})
	assert.Equal(t, map[string]interface{}{
		"_id":   oid.Hex(),
		"n":     int64(3),
		"inner": map[string]interface{}{"a": []interface{}{int64(1)}},
	}, got)
}
