package datasets

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"

	"github.com/Noofbiz/labelbowl/entities"
)

const overlayAlpha = 0.8

var palette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
	{210, 245, 60, 255},
	{250, 190, 212, 255},
}

func (g *Generator) labelColor(label string) color.RGBA {
	id, ok := g.labels.ID(label)
	if !ok {
		return color.RGBA{255, 255, 255, 255}
	}
	return palette[(id%len(palette)+len(palette))%len(palette)]
}

// Visualize materializes sample idx and draws its annotations over the
// image: box outlines, filled polygons, a tinted segmentation overlay or, for
// classification, one swatch per label in the top left corner. It returns the
// marked image and the annotations drawn. Batching must be off.
func (g *Generator) Visualize(idx int) (*image.RGBA, []entities.Annotation, error) {
	if g.opts.BatchSize > 0 {
		return nil, nil, errors.New("can visualize only when batching is off")
	}
	item, err := g.getSingleItem(idx)
	if err != nil {
		return nil, nil, err
	}
	arr, ok := item[KeyImage].(*Array)
	if !ok {
		return nil, nil, errors.Errorf("sample %d has no image", idx)
	}
	src, err := arr.Image()
	if err != nil {
		return nil, nil, err
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	if g.annotationType == entities.AnnotationNone {
		return canvas, nil, nil
	}
	targets := item[KeyAnnotations]
	if g.opts.ToCategorical {
		if a, ok := targets.(*Array); ok {
			targets = fromCategorical(a, canvas.Bounds().Size())
		}
	}
	annotations, err := g.ToAnnotations(targets, item.Labels())
	if err != nil {
		return nil, nil, err
	}

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetLineWidth(2)
	swatch := 0
	for _, a := range annotations {
		c := g.labelColor(a.Label)
		gc.SetStrokeColor(c)
		switch a.Type {
		case entities.AnnotationBox:
			gc.MoveTo(a.Left, a.Top)
			gc.LineTo(a.Right, a.Top)
			gc.LineTo(a.Right, a.Bottom)
			gc.LineTo(a.Left, a.Bottom)
			gc.Close()
			gc.Stroke()
		case entities.AnnotationPolygon:
			if len(a.Points) == 0 {
				continue
			}
			fill := c
			fill.A = uint8(255 * (1 - overlayAlpha))
			gc.SetFillColor(fill)
			last := a.Points[len(a.Points)-1]
			gc.MoveTo(last.X, last.Y)
			for _, p := range a.Points {
				gc.LineTo(p.X, p.Y)
			}
			gc.Close()
			gc.FillStroke()
		case entities.AnnotationClassification:
			gc.SetFillColor(c)
			x := float64(4 + swatch*14)
			gc.MoveTo(x, 4)
			gc.LineTo(x+10, 4)
			gc.LineTo(x+10, 14)
			gc.LineTo(x, 14)
			gc.Close()
			gc.Fill()
			swatch++
		}
	}
	if mask, ok := targets.(*Array); ok && g.annotationType == entities.AnnotationSegmentation {
		g.tint(canvas, mask)
	}
	return canvas, annotations, nil
}

// tint blends the color of every mask id over canvas.
func (g *Generator) tint(canvas *image.RGBA, mask *Array) {
	colors := make(map[int]color.RGBA)
	for _, label := range g.labels.Labels() {
		id, _ := g.labels.ID(label)
		colors[id] = g.labelColor(label)
	}
	w := canvas.Bounds().Dx()
	for i, v := range mask.Data {
		c, ok := colors[int(v)]
		if !ok || v == 0 {
			continue
		}
		p := canvas.Pix[(i/w)*canvas.Stride+(i%w)*4:]
		p[0] = blend(p[0], c.R)
		p[1] = blend(p[1], c.G)
		p[2] = blend(p[2], c.B)
	}
}

func blend(dst, src uint8) uint8 {
	return uint8(float64(dst)*(1-overlayAlpha) + float64(src)*overlayAlpha)
}

// fromCategorical reverts a one-hot encoding: [n, classes] rows become the
// [n] ids of their hot column, reshaped to [height, width] when n covers the
// whole image.
func fromCategorical(a *Array, size image.Point) *Array {
	if len(a.Shape) != 2 {
		return a
	}
	n, width := a.Shape[0], a.Shape[1]
	ids := NewArray(n)
	for r := range n {
		row := a.Data[r*width : (r+1)*width]
		best := 0
		for c, v := range row {
			if v > row[best] {
				best = c
			}
		}
		ids.Data[r] = float32(best)
	}
	if n == size.X*size.Y {
		ids.Shape = []int{size.Y, size.X}
	}
	return ids
}

// ToAnnotations converts generator targets back into annotations:
//
//   - segmentation: a [height, width] id mask gives one binary annotation per
//     label present, bounded by its pixels;
//   - box: [n, 4] boxes zipped with labels;
//   - class: class ids (an *Array or []int) zipped with labels;
//   - polygon: point lists zipped with labels.
//
// Missing labels are left empty (segmentation takes them from the label
// map). Other annotation types fail with entities.ErrUnsupportedType.
func (g *Generator) ToAnnotations(targets any, labels []string) ([]entities.Annotation, error) {
	labelAt := func(i int) string {
		if i < len(labels) {
			return labels[i]
		}
		return ""
	}

	var out []entities.Annotation
	switch g.annotationType {
	case entities.AnnotationSegmentation:
		mask, ok := targets.(*Array)
		if !ok || len(mask.Shape) != 2 {
			return nil, errors.Errorf("segmentation targets are %v, want a [height, width] *Array", targets)
		}
		w := mask.Shape[1]
		for _, label := range g.labels.Labels() {
			id, _ := g.labels.ID(label)
			a := entities.Annotation{Type: entities.AnnotationSegmentation, Label: label}
			found := false
			for i, v := range mask.Data {
				if int(v) != id {
					continue
				}
				x, y := float64(i%w), float64(i/w)
				if !found {
					a.Left, a.Top, a.Right, a.Bottom = x, y, x+1, y+1
					found = true
					continue
				}
				a.Left, a.Top = min(a.Left, x), min(a.Top, y)
				a.Right, a.Bottom = max(a.Right, x+1), max(a.Bottom, y+1)
			}
			if found {
				out = append(out, a)
			}
		}
	case entities.AnnotationBox:
		boxes, ok := targets.(*Array)
		if !ok {
			return nil, errors.Errorf("box targets are %T, want *Array", targets)
		}
		for i := range boxes.Size() / 4 {
			b := boxes.Row(i)
			out = append(out, entities.Annotation{
				Type:   entities.AnnotationBox,
				Label:  labelAt(i),
				Left:   float64(b[0]),
				Top:    float64(b[1]),
				Right:  float64(b[2]),
				Bottom: float64(b[3]),
			})
		}
	case entities.AnnotationClassification:
		var n int
		switch t := targets.(type) {
		case *Array:
			n = t.Size()
		case []int:
			n = len(t)
		default:
			return nil, errors.Errorf("class targets are %T, want *Array or []int", targets)
		}
		for i := range n {
			out = append(out, entities.Annotation{Type: entities.AnnotationClassification, Label: labelAt(i)})
		}
	case entities.AnnotationPolygon:
		polygons, ok := targets.([][]entities.Point)
		if !ok {
			return nil, errors.Errorf("polygon targets are %T, want [][]entities.Point", targets)
		}
		for i, points := range polygons {
			a := entities.Annotation{
				Type:   entities.AnnotationPolygon,
				Label:  labelAt(i),
				Points: append([]entities.Point(nil), points...),
			}
			for j, p := range points {
				if j == 0 {
					a.Left, a.Top, a.Right, a.Bottom = p.X, p.Y, p.X, p.Y
					continue
				}
				a.Left, a.Top = min(a.Left, p.X), min(a.Top, p.Y)
				a.Right, a.Bottom = max(a.Right, p.X), max(a.Bottom, p.Y)
			}
			out = append(out, a)
		}
	default:
		return nil, errors.Wrapf(entities.ErrUnsupportedType, "cannot convert %q targets", g.annotationType)
	}
	return out, nil
}
