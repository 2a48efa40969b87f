package sqlstore

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// scanRows scans rows into maps. NULL columns are left out so that rows
// look like documents missing the field; structured columns are decoded.
func scanRows(rows *sql.Rows, model *schema.Model) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			v, err := decodeColumn(model, col, values[i])
			if err != nil {
				return nil, err
			}
			if v != nil {
				record[col] = v
			}
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func decodeColumn(model *schema.Model, column string, v interface{}) (interface{}, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if model == nil {
		return v, nil
	}
	f, ok := model.Field(column)
	if !ok || !structured(f.Type) {
		return v, nil
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	decoded, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding column %s: %w", column, err)
	}
	return decoded, nil
}

// encodeValue prepares a value for binding; maps and slices are stored as
// JSON text
func encodeValue(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, string, []byte, time.Time:
		return v, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := oj.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}
