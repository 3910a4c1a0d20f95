//go:build gocv

package datasets

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GocvImage adapts an OpenCV operation into an image-only transform. fn
// reads src (BGR) and writes its result into dst.
func GocvImage(fn func(src gocv.Mat, dst *gocv.Mat)) ImageFunc {
	return func(img image.Image) (image.Image, error) {
		src, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return nil, errors.Wrap(err, "converting image to mat")
		}
		defer src.Close()
		dst := gocv.NewMat()
		defer dst.Close()
		fn(src, &dst)
		if dst.Empty() {
			return nil, errors.New("gocv transform produced an empty mat")
		}
		out, err := dst.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "converting mat to image")
		}
		return out, nil
	}
}

// GocvGaussianBlur blurs with an OpenCV gaussian kernel of size k (odd).
func GocvGaussianBlur(k int) ImageFunc {
	return GocvImage(func(src gocv.Mat, dst *gocv.Mat) {
		gocv.GaussianBlur(src, dst, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	})
}
