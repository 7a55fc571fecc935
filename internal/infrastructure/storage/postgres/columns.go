package postgres

import (
	"reflect"
	"sync"
)

// Columns returns the column names declared by the "db" tags of T, walking
// embedded structs in declaration order. Fields tagged "-" are skipped.
//
//	cols := Columns[article.Article]()
//	// ["id", "code", "name", ...]
func Columns[T any]() []string {
	var zero T
	meta := metadataOf(reflect.TypeOf(zero))
	cols := make([]string, len(meta))
	for i, f := range meta {
		cols[i] = f.column
	}
	return cols
}

// Values returns the field values of v for the given columns, in order.
// Unknown columns yield nil.
func Values(v any, columns []string) []any {
	m := ColumnMap(v)
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = m[c]
	}
	return out
}

// ColumnMap converts a struct (or pointer to one) to a column → value map.
func ColumnMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	meta := metadataOf(rv.Type())
	res := make(map[string]any, len(meta))
	for _, f := range meta {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}

type fieldInfo struct {
	column string
	index  []int
}

var typeCache sync.Map // map[reflect.Type][]fieldInfo

func metadataOf(t reflect.Type) []fieldInfo {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		fields = collectFields(t, nil)
	}
	typeCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, parent []int) []fieldInfo {
	var out []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			out = append(out, collectFields(field.Type, index)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		out = append(out, fieldInfo{column: tag, index: index})
	}
	return out
}

// without returns cols minus the excluded names.
func without(cols []string, excluded ...string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		skip[e] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}
