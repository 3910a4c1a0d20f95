package entities

import (
	"fmt"
	"path"
	"reflect"
	"strings"
)

// FilterOperator is the comparison applied by a FilterCondition.
type FilterOperator string

const (
	FilterEqual    FilterOperator = "eq"
	FilterNotEqual FilterOperator = "ne"
	FilterIn       FilterOperator = "in"
	FilterExists   FilterOperator = "exists"
	FilterGlob     FilterOperator = "glob"
)

const defaultPageSize = 1000

// FilterCondition matches a dotted field path of the item JSON against Value.
type FilterCondition struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// Filters selects the items a listing or download operates on. All
// conditions must match.
type Filters struct {
	Resource   string            `json:"resource"`
	Conditions []FilterCondition `json:"conditions"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

// NewFilters returns the default item filter: files only.
func NewFilters() *Filters {
	f := &Filters{Resource: "items", PageSize: defaultPageSize}
	f.Add("type", FilterEqual, string(ItemTypeFile))
	return f
}

// Add appends a condition and returns f for chaining.
func (f *Filters) Add(field string, op FilterOperator, value any) *Filters {
	f.Conditions = append(f.Conditions, FilterCondition{Field: field, Operator: op, Value: value})
	return f
}

// Match reports whether the JSON document (as produced by Item.ToJSON)
// satisfies every condition.
func (f *Filters) Match(doc map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Conditions {
		if !c.match(doc) {
			return false
		}
	}
	return true
}

func (c FilterCondition) match(doc map[string]any) bool {
	v, found := lookup(doc, c.Field)
	switch c.Operator {
	case FilterExists:
		want, _ := c.Value.(bool)
		return found == want
	case FilterEqual, "":
		return found && equalValues(v, c.Value)
	case FilterNotEqual:
		return !found || !equalValues(v, c.Value)
	case FilterIn:
		if !found {
			return false
		}
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() != reflect.Slice {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if equalValues(v, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	case FilterGlob:
		s, ok := v.(string)
		pattern, _ := c.Value.(string)
		if !ok || !found {
			return false
		}
		matched, err := path.Match(pattern, s)
		return err == nil && matched
	}
	return false
}

func lookup(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// equalValues compares JSON-ish values loosely so that numbers decoded as
// float64 compare equal to Go ints.
func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
