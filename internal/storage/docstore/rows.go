package docstore

import (
	"fmt"
	"sort"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
)

// sortRows orders rows in place. Missing values sort first.
func sortRows(rows []map[string]interface{}, keys []filter.Sort) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a, aok := filter.Lookup(rows[i], k.Field)
			b, bok := filter.Lookup(rows[j], k.Field)
			c := compareForSort(a, aok && a != nil, b, bok && b != nil)
			if c == 0 {
				continue
			}
			if k.Order == filter.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareForSort(a interface{}, aok bool, b interface{}, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if c, ok := filter.Compare(a, b); ok {
		return c
	}
	// values of different families order by type name
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	}
	return 0
}

// pageRows applies skip and limit
func pageRows(rows []map[string]interface{}, page filter.Page) []map[string]interface{} {
	if page.Skip >= len(rows) {
		return []map[string]interface{}{}
	}
	rows = rows[page.Skip:]
	if page.Limit > 0 && page.Limit < len(rows) {
		rows = rows[:page.Limit]
	}
	return rows
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
