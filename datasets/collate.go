package datasets

import (
	"reflect"

	"github.com/pkg/errors"
)

// CollateFunc merges the samples of a batch into a single value.
type CollateFunc func(batch []any) (any, error)

// Stacker turns a batch of array values into one backend value with a new
// leading batch axis. ok is false when the values are not arrays the stacker
// handles, in which case Collate continues with its generic rules.
type Stacker interface {
	Stack(values []any) (stacked any, ok bool, err error)
}

// ArrayStacker stacks *Array values into a single *Array. Arrays of
// different shapes cannot be stacked and are passed through as []any.
type ArrayStacker struct{}

// Stack implements Stacker.
func (ArrayStacker) Stack(values []any) (any, bool, error) {
	arrays, ok := arraysOf(values)
	if !ok {
		return nil, false, nil
	}
	if !sameShapes(arrays) {
		return append([]any(nil), values...), true, nil
	}
	return stackArrays(arrays), true, nil
}

func arraysOf(values []any) ([]*Array, bool) {
	arrays := make([]*Array, len(values))
	for i, v := range values {
		a, ok := v.(*Array)
		if !ok || a == nil {
			return nil, false
		}
		arrays[i] = a
	}
	return arrays, true
}

func sameShapes(arrays []*Array) bool {
	for _, a := range arrays[1:] {
		if !a.SameShape(arrays[0]) {
			return false
		}
	}
	return true
}

func stackArrays(arrays []*Array) *Array {
	out := NewArray(append([]int{len(arrays)}, arrays[0].Shape...)...)
	stride := arrays[0].Size()
	for i, a := range arrays {
		copy(out.Data[i*stride:], a.Data)
	}
	return out
}

// DefaultCollate collates with ArrayStacker.
func DefaultCollate(batch []any) (any, error) {
	return Collate(batch, ArrayStacker{})
}

// CollateWith returns a CollateFunc using stacker.
func CollateWith(stacker Stacker) CollateFunc {
	return func(batch []any) (any, error) {
		return Collate(batch, stacker)
	}
}

// Collate merges batch according to the type of its first element:
//
//   - arrays are handed to stacker;
//   - nil, booleans, numbers, strings and []byte are returned as []any;
//   - maps and DataItems are collated key by key;
//   - structs are collated field by field into a new value of the same type,
//     so every field must be able to hold the collated value (typically any);
//   - other slices are transposed, truncated to the shortest element, and
//     every column collated.
//
// Anything else fails with ErrUnsupportedCollate.
func Collate(batch []any, stacker Stacker) (any, error) {
	if len(batch) == 0 {
		return nil, errors.Wrap(ErrUnsupportedCollate, "empty batch")
	}
	if stacker != nil {
		stacked, ok, err := stacker.Stack(batch)
		if err != nil {
			return nil, err
		}
		if ok {
			return stacked, nil
		}
	}

	switch first := batch[0].(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return append([]any(nil), batch...), nil
	case DataItem:
		out, err := collateMaps(batch, stacker, func(v any) (map[string]any, bool) {
			m, ok := v.(DataItem)
			return m, ok
		}, first)
		if err != nil {
			return nil, err
		}
		return DataItem(out), nil
	case map[string]any:
		out, err := collateMaps(batch, stacker, func(v any) (map[string]any, bool) {
			m, ok := v.(map[string]any)
			return m, ok
		}, first)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	first := reflect.ValueOf(batch[0])
	switch first.Kind() {
	case reflect.Struct:
		return collateStructs(batch, stacker, first.Type())
	case reflect.Slice, reflect.Array:
		return collateSequences(batch, stacker)
	}
	return nil, errors.Wrapf(ErrUnsupportedCollate, "found %T", batch[0])
}

func collateMaps(batch []any, stacker Stacker, asMap func(any) (map[string]any, bool), first map[string]any) (map[string]any, error) {
	maps := make([]map[string]any, len(batch))
	for i, v := range batch {
		m, ok := asMap(v)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedCollate, "element %d is %T, want %T", i, v, batch[0])
		}
		maps[i] = m
	}
	out := make(map[string]any, len(first))
	for key := range first {
		column := make([]any, len(maps))
		for i, m := range maps {
			v, ok := m[key]
			if !ok {
				return nil, errors.Wrapf(ErrUnsupportedCollate, "element %d has no key %q", i, key)
			}
			column[i] = v
		}
		collated, err := Collate(column, stacker)
		if err != nil {
			return nil, errors.WithMessagef(err, "key %q", key)
		}
		out[key] = collated
	}
	return out, nil
}

func collateStructs(batch []any, stacker Stacker, typ reflect.Type) (any, error) {
	values := make([]reflect.Value, len(batch))
	for i, v := range batch {
		rv := reflect.ValueOf(v)
		if rv.Type() != typ {
			return nil, errors.Wrapf(ErrUnsupportedCollate, "element %d is %T, want %s", i, v, typ)
		}
		values[i] = rv
	}
	out := reflect.New(typ).Elem()
	for f := range typ.NumField() {
		field := typ.Field(f)
		if !field.IsExported() {
			continue
		}
		column := make([]any, len(values))
		for i, rv := range values {
			column[i] = rv.Field(f).Interface()
		}
		collated, err := Collate(column, stacker)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", field.Name)
		}
		cv := reflect.ValueOf(collated)
		if !cv.IsValid() {
			continue
		}
		if !cv.Type().AssignableTo(field.Type) {
			return nil, errors.Wrapf(ErrUnsupportedCollate, "field %s of type %s cannot hold %T", field.Name, field.Type, collated)
		}
		out.Field(f).Set(cv)
	}
	return out.Interface(), nil
}

func collateSequences(batch []any, stacker Stacker) (any, error) {
	seqs := make([]reflect.Value, len(batch))
	n := -1
	for i, v := range batch {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, errors.Wrapf(ErrUnsupportedCollate, "element %d is %T, want a sequence", i, v)
		}
		seqs[i] = rv
		if n < 0 || rv.Len() < n {
			n = rv.Len()
		}
	}
	out := make([]any, n)
	for j := range n {
		column := make([]any, len(seqs))
		for i, rv := range seqs {
			column[i] = rv.Index(j).Interface()
		}
		collated, err := Collate(column, stacker)
		if err != nil {
			return nil, errors.WithMessagef(err, "position %d", j)
		}
		out[j] = collated
	}
	return out, nil
}
