package datasets

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Oversampler resamples a labeled sample set so that every class reaches the
// size of the majority class.
type Oversampler interface {
	// FitResample returns the resampled x and y. Duplicated samples keep
	// their original x value.
	FitResample(x, y []int) (xRes, yRes []int, err error)
}

// RandomOverSampler duplicates randomly chosen samples (with replacement)
// of every minority class. The output holds the original samples followed
// by the additions, class by class in ascending class order.
type RandomOverSampler struct {
	Seed int64
}

// FitResample implements Oversampler.
func (s RandomOverSampler) FitResample(x, y []int) ([]int, []int, error) {
	if len(x) != len(y) {
		return nil, nil, errors.Errorf("oversampling: %d samples but %d targets", len(x), len(y))
	}
	byClass := make(map[int][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]int, 0, len(byClass))
	majority := 0
	for c, members := range byClass {
		classes = append(classes, c)
		majority = max(majority, len(members))
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(s.Seed))
	xRes := append([]int(nil), x...)
	yRes := append([]int(nil), y...)
	for _, c := range classes {
		members := byClass[c]
		for range majority - len(members) {
			pick := members[rng.Intn(len(members))]
			xRes = append(xRes, x[pick])
			yRes = append(yRes, c)
		}
	}
	return xRes, yRes, nil
}

// balance oversamples whole items by class id. An item with several class
// ids takes part once per id.
func (g *Generator) balance() error {
	if g.opts.Oversampler == nil {
		log.Error(`Class balancing is ON but no oversampler is configured. Use WithOversampler(datasets.RandomOverSampler{Seed: 42}) and try again`)
		return ErrMissingOversampler
	}
	log.Info("Class balance is on!")

	var classIDs, itemIdx []int
	for i, item := range g.items {
		ids := item.ClassIDs()
		if len(ids) == 0 {
			return errors.Wrapf(ErrEmptyClasses, "item %s", item.ImageFilepath())
		}
		for _, id := range ids {
			classIDs = append(classIDs, id)
			itemIdx = append(itemIdx, i)
		}
	}

	xRes, _, err := g.opts.Oversampler.FitResample(itemIdx, classIDs)
	if err != nil {
		return errors.WithMessage(err, "class balancing")
	}
	balanced := make([]DataItem, len(xRes))
	for i, idx := range xRes {
		balanced[i] = g.items[idx]
	}
	g.items = balanced
	log.Infof("Data Generator labels after oversampling: %v", g.LabelStatistics())
	return nil
}

// shuffle permutes the index with the configured seed, or sorts it by image
// path when shuffling is off.
func (g *Generator) shuffle() {
	if !g.opts.Shuffle {
		sort.SliceStable(g.items, func(i, j int) bool {
			return g.items[i].ImageFilepath() < g.items[j].ImageFilepath()
		})
		return
	}
	g.seed = DefaultSeed
	if g.opts.Seed != nil {
		g.seed = *g.opts.Seed
	}
	rng := rand.New(rand.NewSource(g.seed))
	rng.Shuffle(len(g.items), func(i, j int) {
		g.items[i], g.items[j] = g.items[j], g.items[i]
	})
}
