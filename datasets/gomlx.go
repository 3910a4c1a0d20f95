package datasets

import (
	"context"
	"io"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/Noofbiz/labelbowl/entities"
)

// To implement gomlx's train.Dataset interface.
var _ train.Dataset = (*Generator)(nil)

// GomlxStacker stacks *Array values into a gomlx tensor of DType
// (Float32 when unset). Ragged batches are passed through as []any.
type GomlxStacker struct {
	DType dtypes.DType
}

// Stack implements Stacker.
func (s GomlxStacker) Stack(values []any) (any, bool, error) {
	arrays, ok := arraysOf(values)
	if !ok {
		return nil, false, nil
	}
	if !sameShapes(arrays) {
		return append([]any(nil), values...), true, nil
	}
	stacked := stackArrays(arrays)
	t, err := s.tensor(stacked)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s GomlxStacker) tensor(a *Array) (*tensors.Tensor, error) {
	dtype := s.DType
	if dtype == dtypes.InvalidDType {
		dtype = dtypes.Float32
	}
	t := tensors.FromShape(shapes.Make(dtype, a.Shape...))
	switch dtype {
	case dtypes.Float32:
		tensors.MustMutableFlatData[float32](t, func(flat []float32) { copy(flat, a.Data) })
	case dtypes.Float64:
		tensors.MustMutableFlatData[float64](t, func(flat []float64) { convertInto(flat, a.Data) })
	case dtypes.Int32:
		tensors.MustMutableFlatData[int32](t, func(flat []int32) { convertInto(flat, a.Data) })
	case dtypes.Int64:
		tensors.MustMutableFlatData[int64](t, func(flat []int64) { convertInto(flat, a.Data) })
	case dtypes.Uint8:
		tensors.MustMutableFlatData[uint8](t, func(flat []uint8) {
			for i, v := range a.Data {
				flat[i] = clampUint8(v)
			}
		})
	default:
		return nil, errors.Errorf("gomlx stacking into %s is not supported", dtype)
	}
	return t, nil
}

func convertInto[T float64 | int32 | int64](dst []T, src []float32) {
	for i, v := range src {
		dst[i] = T(v)
	}
}

// Yield implements train.Dataset. Every call returns the next batch (a
// single sample without batching): inputs holds the stacked images and
// labels the stacked targets (empty for unannotated generators). It returns
// io.EOF at the end of the epoch. Targets of varying shapes (for instance a
// different number of boxes per image) cannot be yielded.
func (g *Generator) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	g.muYield.Lock()
	defer g.muYield.Unlock()
	if g.position >= g.Len() {
		return nil, nil, nil, io.EOF
	}
	factor := g.batchFactor()
	positions := Slice{Start: g.position * factor, Stop: min((g.position+1)*factor, len(g.items))}.indices(len(g.items))
	g.position++

	batch, err := g.getBatch(context.Background(), positions)
	if err != nil {
		return nil, nil, nil, err
	}
	images := make([]any, len(batch))
	targets := make([]any, len(batch))
	for i, item := range batch {
		images[i] = item[KeyImage]
		targets[i] = item[KeyAnnotations]
	}

	stacker := GomlxStacker{DType: dtypes.Float32}
	in, err := stackTensor(images, stacker)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "stacking images")
	}
	inputs = []*tensors.Tensor{in}
	if g.annotationType != entities.AnnotationNone {
		lab, err := stackTensor(targets, stacker)
		if err != nil {
			return nil, nil, nil, errors.WithMessagef(err, "stacking %s targets", g.annotationType)
		}
		labels = []*tensors.Tensor{lab}
	}
	return g, inputs, labels, nil
}

func stackTensor(values []any, stacker GomlxStacker) (*tensors.Tensor, error) {
	v, err := Collate(values, stacker)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*tensors.Tensor)
	if !ok {
		return nil, errors.Errorf("batch of %T does not stack into a tensor (ragged shapes?)", values[0])
	}
	return t, nil
}

// Reset implements train.Dataset, restarting the epoch.
func (g *Generator) Reset() {
	g.muYield.Lock()
	defer g.muYield.Unlock()
	g.position = 0
}
