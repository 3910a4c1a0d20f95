package datasets

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/labelbowl/entities"
)

// Generator indexes a local dataset cache and materializes training samples
// from it. The index is built once by NewGenerator and is read-only
// afterwards, so GetItem may be called concurrently.
type Generator struct {
	source         Source
	annotationType entities.AnnotationType
	opts           Options
	labels         *LabelMap

	rootDir   string
	itemsPath string
	jsonPath  string
	maskPath  string

	items []DataItem
	seed  int64

	// Cursor of the gomlx train.Dataset implementation.
	muYield  sync.Mutex
	position int
}

// NewGenerator builds a generator over source for annotationType.
//
// The local cache (Options.DataPath) is downloaded when missing, or when
// Options.Overwrite is set, in which case it is deleted first. An existing
// cache is reused as-is.
func NewGenerator(ctx context.Context, source Source, annotationType entities.AnnotationType, opts ...Option) (*Generator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch annotationType {
	case entities.AnnotationNone, entities.AnnotationClassification, entities.AnnotationBox,
		entities.AnnotationSegmentation, entities.AnnotationPolygon:
	default:
		return nil, errors.Wrapf(entities.ErrUnsupportedType, "generator cannot load %q annotations", annotationType)
	}

	var labels *LabelMap
	var err error
	if o.IDToLabel == nil {
		labels, err = NewLabelMap(source.InstanceMap())
	} else {
		labels, err = LabelMapFromIDs(o.IDToLabel)
		if err == nil {
			source.SetInstanceMap(labels.LabelToID())
		}
	}
	if err != nil {
		return nil, errors.WithMessage(err, "building label map")
	}

	if o.DataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolving default data path")
		}
		o.DataPath = filepath.Join(home, ".dataloop", "datasets", fmt.Sprintf("%s_%s", source.DatasetName(), source.DatasetID()))
	}
	if o.Transforms != nil && o.TransformsCallback == nil {
		o.TransformsCallback = DefaultTransformsCallback
	}
	if o.Name == "" {
		o.Name = source.DatasetName()
	}

	g := &Generator{
		source:         source,
		annotationType: annotationType,
		opts:           o,
		labels:         labels,
		rootDir:        o.DataPath,
		itemsPath:      filepath.Join(o.DataPath, entities.ItemsDirName),
		jsonPath:       filepath.Join(o.DataPath, entities.JSONDirName),
		maskPath:       filepath.Join(o.DataPath, string(entities.ViewAnnotationInstance)),
	}
	if err := g.populateCache(ctx); err != nil {
		return nil, err
	}
	if err := g.loadAnnotations(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// populateCache downloads the dataset into the data path unless it already
// exists. JSON sidecars are always requested; instance masks are added for
// segmentation.
func (g *Generator) populateCache(ctx context.Context) error {
	fs := g.opts.Fs
	exists, err := afero.DirExists(fs, g.rootDir)
	if err != nil {
		return errors.Wrapf(err, "checking %s", g.rootDir)
	}
	if exists && !g.opts.Overwrite {
		return nil
	}
	if exists {
		log.WithField("path", g.rootDir).Warn("overwrite flag is set, deleting and downloading again")
		if err := fs.RemoveAll(g.rootDir); err != nil {
			return errors.Wrapf(err, "deleting %s", g.rootDir)
		}
	}

	options := []entities.ViewAnnotationOption{entities.ViewAnnotationJSON}
	if g.annotationType == entities.AnnotationSegmentation {
		options = append(options, entities.ViewAnnotationInstance)
	}
	manifest, err := g.source.Download(ctx, g.opts.Filters, g.rootDir, options)
	if err != nil {
		return errors.WithMessagef(err, "downloading dataset %q", g.source.DatasetName())
	}
	log.WithFields(logrus.Fields{"dataset": g.source.DatasetName(), "items": len(manifest.Entries)}).Info("dataset downloaded")
	return nil
}

// Name implements train.Dataset.
func (g *Generator) Name() string { return g.opts.Name }

// AnnotationType returns the annotation type the generator loads.
func (g *Generator) AnnotationType() entities.AnnotationType { return g.annotationType }

// RootDir returns the local cache root.
func (g *Generator) RootDir() string { return g.rootDir }

// Labels returns the label map.
func (g *Generator) Labels() *LabelMap { return g.labels }

// NumClasses returns the number of labels.
func (g *Generator) NumClasses() int { return g.labels.Len() }

// Seed returns the shuffle seed in use (0 when not shuffling).
func (g *Generator) Seed() int64 { return g.seed }

// NumItems returns the number of indexed samples.
func (g *Generator) NumItems() int { return len(g.items) }

// Items returns a copy of the index.
func (g *Generator) Items() []DataItem {
	out := make([]DataItem, len(g.items))
	for i, item := range g.items {
		out[i] = item.Clone()
	}
	return out
}

func (g *Generator) batchFactor() int {
	if g.opts.BatchSize > 0 {
		return g.opts.BatchSize
	}
	return 1
}

// Len returns the number of batches: ceil(NumItems / BatchSize), or
// NumItems without batching.
func (g *Generator) Len() int {
	factor := g.batchFactor()
	return (len(g.items) + factor - 1) / factor
}

// Slice selects positions Start, Start+Step, ... up to (excluding) Stop.
// A zero Step means 1. Negative Start and Stop count from the end, and
// bounds past either end are clamped, so a Slice never selects a missing
// position.
type Slice struct {
	Start, Stop, Step int
}

// indices resolves s against a sequence of length n.
func (s Slice) indices(n int) []int {
	step := s.Step
	if step == 0 {
		step = 1
	}
	start, stop := s.Start, s.Stop
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	var out []int
	if step > 0 {
		for i := max(start, 0); i < min(stop, n); i += step {
			out = append(out, i)
		}
	} else {
		for i := min(start, n-1); i > max(stop, -1); i += step {
			out = append(out, i)
		}
	}
	return out
}

// GetItem returns a sample or a batch.
//
// An int index without batching returns a DataItem. With batching, the int
// selects the batch [idx*BatchSize, min((idx+1)*BatchSize, NumItems)).
// Negative ints count from the end. A Slice selects explicit positions. Batches are []DataItem, or whatever the
// configured collate function returns. Other index types yield
// ErrUnsupportedIndex.
func (g *Generator) GetItem(ctx context.Context, idx any) (any, error) {
	var positions []int
	switch v := idx.(type) {
	case int:
		if g.opts.BatchSize == 0 {
			return g.getSingleItem(v)
		}
		if v < 0 {
			v += g.Len()
		}
		if v < 0 || v >= g.Len() {
			return nil, errors.Wrapf(ErrOutOfRange, "batch %d of %d", v, g.Len())
		}
		positions = Slice{Start: v * g.opts.BatchSize, Stop: min((v+1)*g.opts.BatchSize, len(g.items))}.indices(len(g.items))
	case Slice:
		positions = v.indices(len(g.items))
	case *Slice:
		positions = v.indices(len(g.items))
	default:
		return nil, errors.Wrapf(ErrUnsupportedIndex, "got %T", idx)
	}

	batch, err := g.getBatch(ctx, positions)
	if err != nil {
		return nil, err
	}
	if g.opts.Collate == nil {
		return batch, nil
	}
	values := make([]any, len(batch))
	for i, item := range batch {
		values[i] = item
	}
	return g.opts.Collate(values)
}

// getBatch materializes positions in order, in parallel when NumWorkers > 0.
func (g *Generator) getBatch(ctx context.Context, positions []int) ([]DataItem, error) {
	out := make([]DataItem, len(positions))
	if g.opts.NumWorkers == 0 {
		for i, p := range positions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			item, err := g.getSingleItem(p)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.NumWorkers)
	for i, p := range positions {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := g.getSingleItem(p)
			if err != nil {
				return err
			}
			out[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// All iterates over GetItem(0) ... GetItem(Len()-1). Iteration stops after
// the first error, which is yielded.
func (g *Generator) All(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for i := range g.Len() {
			v, err := g.GetItem(ctx, i)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
