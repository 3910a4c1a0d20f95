package datasets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"

	"github.com/Noofbiz/labelbowl/entities"
)

// getSingleItem materializes the sample at idx: a deep copy of the index
// record plus the loaded image and its target under KeyImage and
// KeyAnnotations. A negative idx counts from the end.
func (g *Generator) getSingleItem(idx int) (DataItem, error) {
	if idx < 0 {
		idx += len(g.items)
	}
	if idx < 0 || idx >= len(g.items) {
		return nil, errors.Wrapf(ErrOutOfRange, "item %d of %d", idx, len(g.items))
	}
	item := g.items[idx].Clone()

	img, err := loadImage(g.opts.Fs, item.ImageFilepath())
	if err != nil {
		return nil, err
	}

	var target any
	switch g.annotationType {
	case entities.AnnotationSegmentation:
		maskPath, _ := item[string(entities.AnnotationSegmentation)].(string)
		mask, err := loadImage(g.opts.Fs, maskPath)
		if err != nil {
			return nil, errors.WithMessage(err, "loading instance mask")
		}
		target = maskFromImage(mask)
	case entities.AnnotationBox:
		target = item[string(entities.AnnotationBox)]
	case entities.AnnotationClassification:
		ids := item.ClassIDs()
		a := NewArray(len(ids))
		for i, id := range ids {
			a.Data[i] = float32(id)
		}
		target = a
	case entities.AnnotationPolygon:
		target = item[string(entities.AnnotationPolygon)]
	}

	if g.opts.ReturnOriginals {
		item[KeyOrigImage] = ArrayFromImage(img)
		item[KeyOrigAnnotations] = cloneValue(target)
	}

	if g.opts.Transforms != nil {
		img, target, err = g.opts.TransformsCallback(g.opts.Transforms, img, target, g.annotationType)
		if err != nil {
			return nil, errors.WithMessagef(err, "transforming %s", item.ImageFilepath())
		}
	}

	if g.opts.ToCategorical {
		if a, ok := target.(*Array); ok && g.annotationType != entities.AnnotationBox {
			if target, err = oneHot(a, g.NumClasses()); err != nil {
				return nil, errors.WithMessagef(err, "encoding %s", item.ImageFilepath())
			}
		}
	}

	item[KeyImage] = ArrayFromImage(img)
	item[KeyAnnotations] = target
	return item, nil
}

func loadImage(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return img, nil
}

// oneHot encodes every element of ids as a row of numClasses+1 columns
// (column 0 is the background).
func oneHot(ids *Array, numClasses int) (*Array, error) {
	width := numClasses + 1
	out := NewArray(ids.Size(), width)
	for i, v := range ids.Data {
		id := int(v)
		if id < 0 || id >= width {
			return nil, errors.Wrapf(ErrOutOfRange, "class id %d with %d classes", id, numClasses)
		}
		out.Data[i*width+id] = 1
	}
	return out, nil
}
