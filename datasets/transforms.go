package datasets

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/Noofbiz/labelbowl/entities"
)

// Transform is an augmentation step. The concrete variants are Compose,
// Sequential and List (containers, applied in order), Batch (an Augmenter
// that also moves boxes, masks and polygons) and ImageFunc (image only).
type Transform interface {
	transform()
}

// Compose applies Transforms in order.
type Compose struct {
	Transforms []Transform
}

// Sequential applies Children in order.
type Sequential struct {
	Children []Transform
}

// List applies its elements in order.
type List []Transform

// Batch wraps a batch-oriented Augmenter. The sample is passed as a batch of
// one.
type Batch struct {
	Augmenter Augmenter
}

// ImageFunc transforms the image only; the target is left untouched.
type ImageFunc func(image.Image) (image.Image, error)

func (Compose) transform()    {}
func (Sequential) transform() {}
func (List) transform()       {}
func (Batch) transform()      {}
func (ImageFunc) transform()  {}

// AugmentBatch is the batch an Augmenter works on. Only the target field
// matching the annotation type is set; the others are nil. Boxes are [n, 4]
// arrays of left, top, right, bottom. SegmentationMaps are [height, width, 1]
// arrays.
type AugmentBatch struct {
	Images           []image.Image
	Boxes            []*Array
	SegmentationMaps []*Array
	Polygons         [][][]entities.Point
}

// Augmenter augments images together with their geometric targets, in place.
// It must be safe for concurrent use.
type Augmenter interface {
	AugmentBatch(b *AugmentBatch) error
}

// TransformsCallback applies t to an image and its target.
type TransformsCallback func(t Transform, img image.Image, target any, annotationType entities.AnnotationType) (image.Image, any, error)

var _ TransformsCallback = DefaultTransformsCallback

// DefaultTransformsCallback unwraps containers recursively and dispatches
// every leaf. Batch leaves receive boxes, segmentation maps or polygons
// depending on annotationType, or the image alone for classification and
// unannotated samples. Any other annotation type on a Batch leaf fails with
// entities.ErrUnsupportedType.
func DefaultTransformsCallback(t Transform, img image.Image, target any, annotationType entities.AnnotationType) (image.Image, any, error) {
	switch v := t.(type) {
	case nil:
		return img, target, nil
	case Compose:
		return applyAll(v.Transforms, img, target, annotationType)
	case Sequential:
		return applyAll(v.Children, img, target, annotationType)
	case List:
		return applyAll(v, img, target, annotationType)
	case ImageFunc:
		out, err := v(img)
		if err != nil {
			return nil, nil, err
		}
		return out, target, nil
	case Batch:
		return applyBatch(v.Augmenter, img, target, annotationType)
	}
	return nil, nil, errors.Errorf("unknown transform %T", t)
}

func applyAll(steps []Transform, img image.Image, target any, annotationType entities.AnnotationType) (image.Image, any, error) {
	var err error
	for _, step := range steps {
		img, target, err = DefaultTransformsCallback(step, img, target, annotationType)
		if err != nil {
			return nil, nil, err
		}
	}
	return img, target, nil
}

func applyBatch(aug Augmenter, img image.Image, target any, annotationType entities.AnnotationType) (image.Image, any, error) {
	b := &AugmentBatch{Images: []image.Image{img}}
	if target == nil {
		if err := aug.AugmentBatch(b); err != nil {
			return nil, nil, err
		}
		return b.Images[0], nil, nil
	}

	switch annotationType {
	case entities.AnnotationBox:
		boxes, ok := target.(*Array)
		if !ok {
			return nil, nil, errors.Errorf("box target is %T, want *Array", target)
		}
		b.Boxes = []*Array{boxes}
		if err := aug.AugmentBatch(b); err != nil {
			return nil, nil, err
		}
		return b.Images[0], b.Boxes[0], nil
	case entities.AnnotationSegmentation:
		mask, ok := target.(*Array)
		if !ok || len(mask.Shape) != 2 {
			return nil, nil, errors.Errorf("segmentation target is %v, want a [height, width] *Array", target)
		}
		expanded := mask.Clone()
		expanded.Shape = append(expanded.Shape, 1)
		b.SegmentationMaps = []*Array{expanded}
		if err := aug.AugmentBatch(b); err != nil {
			return nil, nil, err
		}
		out := b.SegmentationMaps[0]
		out.Shape = out.Shape[:2]
		return b.Images[0], out, nil
	case entities.AnnotationPolygon:
		polygons, ok := target.([][]entities.Point)
		if !ok {
			return nil, nil, errors.Errorf("polygon target is %T, want [][]entities.Point", target)
		}
		b.Polygons = [][][]entities.Point{polygons}
		if err := aug.AugmentBatch(b); err != nil {
			return nil, nil, err
		}
		return b.Images[0], b.Polygons[0], nil
	case entities.AnnotationClassification:
		if err := aug.AugmentBatch(b); err != nil {
			return nil, nil, err
		}
		return b.Images[0], target, nil
	}
	return nil, nil, errors.Wrapf(entities.ErrUnsupportedType, "batch augmentation of %q annotations", annotationType)
}

type flip struct {
	vertical bool
}

// FlipHorizontal mirrors images left to right, moving boxes, masks and
// polygons along.
func FlipHorizontal() Batch { return Batch{Augmenter: flip{}} }

// FlipVertical mirrors images top to bottom, moving boxes, masks and polygons
// along.
func FlipVertical() Batch { return Batch{Augmenter: flip{vertical: true}} }

func (f flip) AugmentBatch(b *AugmentBatch) error {
	for i, img := range b.Images {
		size := img.Bounds().Size()
		if f.vertical {
			b.Images[i] = imaging.FlipV(img)
		} else {
			b.Images[i] = imaging.FlipH(img)
		}
		if i < len(b.Boxes) && b.Boxes[i] != nil {
			f.boxes(b.Boxes[i], size)
		}
		if i < len(b.SegmentationMaps) && b.SegmentationMaps[i] != nil {
			f.mask(b.SegmentationMaps[i])
		}
		if i < len(b.Polygons) {
			for _, poly := range b.Polygons[i] {
				for j := range poly {
					if f.vertical {
						poly[j].Y = float64(size.Y) - poly[j].Y
					} else {
						poly[j].X = float64(size.X) - poly[j].X
					}
				}
			}
		}
	}
	return nil
}

func (f flip) boxes(a *Array, size image.Point) {
	for r := range a.Size() / 4 {
		box := a.Row(r)
		if f.vertical {
			h := float32(size.Y)
			box[1], box[3] = h-box[3], h-box[1]
		} else {
			w := float32(size.X)
			box[0], box[2] = w-box[2], w-box[0]
		}
	}
}

func (f flip) mask(a *Array) {
	h, w, c := a.Shape[0], a.Shape[1], a.Shape[2]
	out := make([]float32, len(a.Data))
	for y := range h {
		for x := range w {
			sy, sx := y, w-1-x
			if f.vertical {
				sy, sx = h-1-y, x
			}
			copy(out[(y*w+x)*c:(y*w+x+1)*c], a.Data[(sy*w+sx)*c:(sy*w+sx+1)*c])
		}
	}
	a.Data = out
}

type resize struct {
	width, height int
}

// Resize scales images to width x height. Boxes and polygons are scaled
// along; masks are resampled with nearest neighbour so ids stay intact.
func Resize(width, height int) Batch {
	return Batch{Augmenter: resize{width: width, height: height}}
}

func (r resize) AugmentBatch(b *AugmentBatch) error {
	if r.width <= 0 || r.height <= 0 {
		return errors.Errorf("resize to %dx%d", r.width, r.height)
	}
	for i, img := range b.Images {
		size := img.Bounds().Size()
		if size.X == 0 || size.Y == 0 {
			return errors.New("resize of an empty image")
		}
		sx := float64(r.width) / float64(size.X)
		sy := float64(r.height) / float64(size.Y)
		b.Images[i] = imaging.Resize(img, r.width, r.height, imaging.Lanczos)

		if i < len(b.Boxes) && b.Boxes[i] != nil {
			boxes := b.Boxes[i]
			for j := range boxes.Size() / 4 {
				box := boxes.Row(j)
				box[0], box[2] = box[0]*float32(sx), box[2]*float32(sx)
				box[1], box[3] = box[1]*float32(sy), box[3]*float32(sy)
			}
		}
		if i < len(b.SegmentationMaps) && b.SegmentationMaps[i] != nil {
			resized, err := r.mask(b.SegmentationMaps[i])
			if err != nil {
				return err
			}
			b.SegmentationMaps[i] = resized
		}
		if i < len(b.Polygons) {
			for _, poly := range b.Polygons[i] {
				for j := range poly {
					poly[j].X *= sx
					poly[j].Y *= sy
				}
			}
		}
	}
	return nil
}

func (r resize) mask(a *Array) (*Array, error) {
	src, err := a.Image()
	if err != nil {
		return nil, err
	}
	dst := image.NewGray(image.Rect(0, 0, r.width, r.height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	out := maskFromImage(dst)
	out.Shape = append(out.Shape, 1)
	return out, nil
}

// Rotate rotates images counter-clockwise by angle degrees, filling the
// uncovered area with black. Targets are not moved.
func Rotate(angle float64) ImageFunc {
	return func(img image.Image) (image.Image, error) {
		return imaging.Rotate(img, angle, color.Black), nil
	}
}

// AdjustBrightness changes the brightness by percentage (-100..100).
func AdjustBrightness(percentage float64) ImageFunc {
	return func(img image.Image) (image.Image, error) {
		return imaging.AdjustBrightness(img, percentage), nil
	}
}

// Blur applies a gaussian blur.
func Blur(sigma float64) ImageFunc {
	return func(img image.Image) (image.Image, error) {
		return imaging.Blur(img, sigma), nil
	}
}
