package datasets

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/Noofbiz/labelbowl/entities"
)

// Keys of a DataItem. Per-type targets are stored under the annotation
// type value itself: "box" (boxes), "class" (class ids), "binary" (mask
// path) and "segment" (polygons).
const (
	KeyImageFilepath      = "image_filepath"
	KeyItemID             = "item_id"
	KeyLabels             = "labels"
	KeyAnnotationFilepath = "annotation_filepath"
	KeyImage              = "image"
	KeyAnnotations        = "annotations"
	KeyOrigImage          = "orig_image"
	KeyOrigAnnotations    = "orig_annotations"
)

// Array is a dense row-major float32 array.
type Array struct {
	Shape []int
	Data  []float32
}

// NewArray returns a zeroed array of the given shape.
func NewArray(shape ...int) *Array {
	return &Array{Shape: append([]int(nil), shape...), Data: make([]float32, numElements(shape))}
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Size returns the number of elements.
func (a *Array) Size() int { return len(a.Data) }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	return &Array{Shape: append([]int(nil), a.Shape...), Data: append([]float32(nil), a.Data...)}
}

// Row returns the i-th slice along the leading axis.
func (a *Array) Row(i int) []float32 {
	if len(a.Shape) == 0 {
		return a.Data
	}
	stride := numElements(a.Shape[1:])
	return a.Data[i*stride : (i+1)*stride]
}

func (a *Array) String() string {
	return fmt.Sprintf("Array%v", a.Shape)
}

// SameShape reports whether a and b have identical shapes.
func (a *Array) SameShape(b *Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// ArrayFromImage returns img as a [height, width, 3] RGB array with values
// in 0..255. Alpha is dropped.
func ArrayFromImage(img image.Image) *Array {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	a := NewArray(h, w, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			a.Data[i] = float32(r >> 8)
			a.Data[i+1] = float32(g >> 8)
			a.Data[i+2] = float32(bl >> 8)
		}
	}
	return a
}

// Image converts a [height, width, 3] or [height, width] (or [height, width,
// 1]) array back into an image.
func (a *Array) Image() (image.Image, error) {
	if len(a.Shape) < 2 || len(a.Shape) > 3 {
		return nil, errors.Errorf("cannot convert %s to an image", a)
	}
	h, w := a.Shape[0], a.Shape[1]
	channels := 1
	if len(a.Shape) == 3 {
		channels = a.Shape[2]
	}
	switch channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range a.Data {
			img.Pix[i] = clampUint8(v)
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < w*h; p++ {
			img.Pix[p*4] = clampUint8(a.Data[p*3])
			img.Pix[p*4+1] = clampUint8(a.Data[p*3+1])
			img.Pix[p*4+2] = clampUint8(a.Data[p*3+2])
			img.Pix[p*4+3] = 255
		}
		return img, nil
	}
	return nil, errors.Errorf("cannot convert %s to an image: %d channels", a, channels)
}

// maskFromImage converts img to a single channel [height, width] array using
// the luminance of each pixel.
func maskFromImage(img image.Image) *Array {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	a := NewArray(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			a.Data[y*w+x] = float32(g.Y)
		}
	}
	return a
}

func clampUint8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// DataItem is one training sample: the index record built while scanning
// the cache, extended with the loaded image and targets when materialized.
type DataItem map[string]any

// ImageFilepath returns the path of the sample image.
func (d DataItem) ImageFilepath() string {
	s, _ := d[KeyImageFilepath].(string)
	return s
}

// Labels returns the label of every qualifying annotation.
func (d DataItem) Labels() []string {
	l, _ := d[KeyLabels].([]string)
	return l
}

// ClassIDs returns the class id of every annotation with a mapped label.
func (d DataItem) ClassIDs() []int {
	c, _ := d[string(entities.AnnotationClassification)].([]int)
	return c
}

// Clone returns a deep copy of the item. Values of unknown types are shared.
func (d DataItem) Clone() DataItem {
	out := make(DataItem, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Array:
		return t.Clone()
	case []int:
		return append([]int(nil), t...)
	case []string:
		return append([]string(nil), t...)
	case []float32:
		return append([]float32(nil), t...)
	case [][]entities.Point:
		out := make([][]entities.Point, len(t))
		for i, p := range t {
			out[i] = append([]entities.Point(nil), p...)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return map[string]any(DataItem(t).Clone())
	case DataItem:
		return t.Clone()
	}
	return v
}
