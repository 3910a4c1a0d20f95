// Package datasets turns a downloaded annotated image dataset into training
// samples.
//
// A Generator is built from a Source (a platform dataset, a bucket export, or
// anything able to produce the on-disk layout below) and an annotation type.
// Construction populates the local cache when needed, scans it and builds an
// in-memory index with one DataItem per usable image:
//
//	<root>/items/<relative path>.<ext>      images (jpg, jpeg, png, bmp)
//	<root>/json/<relative path>.json        annotation sidecars
//	<root>/instance/<relative path>.png     instance masks (segmentation)
//
// Samples are only loaded from disk when requested, through GetItem, All or
// the gomlx train.Dataset methods (Name, Yield and Reset).
//
// Index layout and intended usage:
//
//   - GetItem(i) returns a single DataItem, or the i-th batch when a batch
//     size is configured.
//   - GetItem(Slice{...}) returns the selected samples as a batch.
//   - Batches are []DataItem unless a collate function is configured, in
//     which case its result is returned.
package datasets

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Noofbiz/labelbowl/entities"
)

var log = logrus.WithField("pkg", "datasets")

// Source is the dataset capability the generator consumes:
// bulk download by filter and the label to id mapping.
type Source interface {
	DatasetName() string
	DatasetID() string
	InstanceMap() map[string]int
	SetInstanceMap(map[string]int)
	Download(ctx context.Context, filters *entities.Filters, localPath string, options []entities.ViewAnnotationOption) (*entities.Manifest, error)
}

var (
	_ Source = (*entities.Dataset)(nil)

	// ErrUnsupportedIndex is returned by GetItem for index types other than
	// int and Slice.
	ErrUnsupportedIndex = errors.New("unsupported indexing: indices must be integers or slices")

	// ErrUnsupportedCollate is returned when a batch holds values collate
	// cannot merge.
	ErrUnsupportedCollate = errors.New("collate: batch must contain arrays, numbers, strings, maps, structs or slices")

	// ErrMissingOversampler is returned when class balancing is enabled
	// without an oversampling algorithm.
	ErrMissingOversampler = errors.New("class balancing requires an oversampler")

	// ErrEmptyClasses is returned when class balancing meets an item without
	// class ids.
	ErrEmptyClasses = errors.New("class balancing requires every item to have at least one class id")

	// ErrOutOfRange is returned for indices outside the generator.
	ErrOutOfRange = errors.New("index out of range")
)
