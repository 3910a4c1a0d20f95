package datasets

import (
	"github.com/spf13/afero"

	"github.com/Noofbiz/labelbowl/entities"
)

// DefaultSeed is the shuffle seed used when shuffling without an explicit
// seed.
const DefaultSeed int64 = 256

// Options holds the generator configuration. Zero values mean "default";
// the With* functions are the usual way to set them.
type Options struct {
	// Filters select the items to download. Nil downloads every file.
	Filters *entities.Filters

	// DataPath is the local cache root. Default:
	// ~/.dataloop/datasets/<name>_<id>.
	DataPath string

	// Overwrite deletes an existing cache and downloads again.
	Overwrite bool

	// IDToLabel overrides the label map of the source (which is updated to
	// match).
	IDToLabel map[int]string

	// Transforms is applied to every sample through TransformsCallback
	// (DefaultTransformsCallback when nil).
	Transforms         Transform
	TransformsCallback TransformsCallback

	// NumWorkers bounds the parallel materialization of a batch. 0 loads
	// samples sequentially.
	NumWorkers int

	// BatchSize groups samples; 0 disables batching.
	BatchSize int

	// Collate merges a batch into a single value.
	Collate CollateFunc

	// Shuffle permutes the index once with Seed (DefaultSeed when nil).
	// Without it the index follows lexicographic image path order.
	Shuffle bool
	Seed    *int64

	// ToCategorical one-hot encodes class and segmentation targets.
	ToCategorical bool

	// ClassBalancing oversamples items so every class id reaches the count
	// of the majority class.
	ClassBalancing bool
	Oversampler    Oversampler

	// ReturnOriginals keeps copies of the image and annotations from before
	// the transforms under "orig_image" and "orig_annotations".
	ReturnOriginals bool

	// IgnoreEmpty drops items without qualifying annotations.
	IgnoreEmpty bool

	// Fs is the filesystem holding the cache. Default: OS.
	Fs afero.Fs

	// Verbose shows a progress bar while the index is built.
	Verbose bool

	// Name is reported by the gomlx Name method. Default: the source name.
	Name string
}

// Option configures a Generator.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Shuffle:     true,
		IgnoreEmpty: true,
		Oversampler: RandomOverSampler{Seed: 42},
		Fs:          afero.NewOsFs(),
	}
}

func WithFilters(f *entities.Filters) Option { return func(o *Options) { o.Filters = f } }

func WithDataPath(p string) Option { return func(o *Options) { o.DataPath = p } }

func WithOverwrite(overwrite bool) Option { return func(o *Options) { o.Overwrite = overwrite } }

// WithIDToLabelMap sets the id to label map, replacing the source's own.
func WithIDToLabelMap(m map[int]string) Option { return func(o *Options) { o.IDToLabel = m } }

func WithTransforms(t Transform) Option { return func(o *Options) { o.Transforms = t } }

func WithTransformsCallback(cb TransformsCallback) Option {
	return func(o *Options) { o.TransformsCallback = cb }
}

func WithNumWorkers(n int) Option { return func(o *Options) { o.NumWorkers = max(n, 0) } }

func WithBatchSize(n int) Option { return func(o *Options) { o.BatchSize = max(n, 0) } }

func WithCollate(fn CollateFunc) Option { return func(o *Options) { o.Collate = fn } }

func WithShuffle(shuffle bool) Option { return func(o *Options) { o.Shuffle = shuffle } }

func WithSeed(seed int64) Option { return func(o *Options) { o.Seed = &seed } }

func WithToCategorical(v bool) Option { return func(o *Options) { o.ToCategorical = v } }

func WithClassBalancing(v bool) Option { return func(o *Options) { o.ClassBalancing = v } }

// WithOversampler replaces the default RandomOverSampler{Seed: 42}. Passing
// nil makes class balancing fail with ErrMissingOversampler.
func WithOversampler(s Oversampler) Option { return func(o *Options) { o.Oversampler = s } }

func WithReturnOriginals(v bool) Option { return func(o *Options) { o.ReturnOriginals = v } }

func WithIgnoreEmpty(v bool) Option { return func(o *Options) { o.IgnoreEmpty = v } }

func WithFs(fs afero.Fs) Option { return func(o *Options) { o.Fs = fs } }

func WithVerbose(v bool) Option { return func(o *Options) { o.Verbose = v } }

func WithName(name string) Option { return func(o *Options) { o.Name = name } }
