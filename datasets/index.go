package datasets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/labelbowl/entities"
)

// ImageExtensions lists the file extensions (case-insensitive) scanned
// under items/.
var ImageExtensions = []string{"jpg", "jpeg", "png", "bmp"}

const (
	indexWorkers = 32

	// Files smaller than this are considered corrupted.
	minImageSize = 5
)

type loadResult struct {
	item    DataItem
	empty   bool
	invalid bool
}

// loadAnnotations scans the cache, joins every image with its sidecar and
// builds the index, then balances and shuffles it.
func (g *Generator) loadAnnotations(ctx context.Context) error {
	log.Infof("Collecting items with the following extensions: %v", ImageExtensions)
	files, err := g.listImages()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if g.opts.Verbose {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Loading Data Generator"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]loadResult, len(files))
	eg := new(errgroup.Group)
	eg.SetLimit(indexWorkers)
	for i, path := range files {
		eg.Go(func() error {
			if bar != nil {
				defer bar.Add(1)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			item, empty, err := g.loadSingle(path)
			if errors.Is(err, entities.ErrUnsupportedType) {
				return errors.WithMessagef(err, "loading %s", path)
			}
			if err != nil {
				log.WithError(err).WithField("path", path).Error("failed loading item in generator")
				results[i] = loadResult{invalid: true}
				return nil
			}
			results[i] = loadResult{item: item, empty: empty}
			return nil
		})
	}
	err = eg.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	var nEmpty, nInvalid int
	items := make([]DataItem, 0, len(results))
	for _, r := range results {
		switch {
		case r.invalid:
			nInvalid++
		case r.empty:
			nEmpty++
			if !g.opts.IgnoreEmpty {
				items = append(items, r.item)
			}
		default:
			items = append(items, r.item)
		}
	}
	g.items = items

	msg := fmt.Sprintf("Done loading items. Total items loaded: %d.", len(results))
	if nEmpty > 0 {
		action := "INCLUDING"
		if g.opts.IgnoreEmpty {
			action = "IGNORING"
		}
		msg += fmt.Sprintf(" %s %d items without annotations.", action, nEmpty)
	}
	if nInvalid > 0 {
		msg += fmt.Sprintf(" Skipped %d invalid items.", nInvalid)
	}
	if len(g.items) == 0 {
		log.Warn(msg)
	} else {
		log.Info(msg)
	}
	log.Infof("Data Generator labels balance statistics: %v", g.LabelStatistics())

	if g.opts.ClassBalancing {
		if err := g.balance(); err != nil {
			return err
		}
	}
	g.shuffle()
	return nil
}

// listImages returns every image file under items/, sorted by path.
func (g *Generator) listImages() ([]string, error) {
	var files []string
	err := afero.Walk(g.opts.Fs, g.itemsPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == g.itemsPath {
				return nil
			}
			return err
		}
		if !info.IsDir() && isImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", g.itemsPath)
	}
	sort.Strings(files)
	return files, nil
}

func isImageFile(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// siblingPath maps an image path under items/ onto root, swapping the
// extension.
func (g *Generator) siblingPath(imagePath, root, ext string) (string, error) {
	rel, err := filepath.Rel(g.itemsPath, imagePath)
	if err != nil {
		return "", errors.Wrapf(err, "%s is not under %s", imagePath, g.itemsPath)
	}
	return filepath.Join(root, strings.TrimSuffix(rel, filepath.Ext(rel))+ext), nil
}

// loadSingle builds the index record of one image. empty reports that the
// image has no qualifying annotations (or no mask, for segmentation). An
// error wrapping entities.ErrUnsupportedType must abort the whole build;
// any other error only invalidates this item.
func (g *Generator) loadSingle(imagePath string) (item DataItem, empty bool, err error) {
	fs := g.opts.Fs
	info, err := fs.Stat(imagePath)
	if err != nil {
		return nil, false, errors.Wrap(err, "stat image")
	}
	if info.Size() < minImageSize {
		return nil, false, errors.Errorf("corrupted image: %d bytes", info.Size())
	}

	annotationPath, err := g.siblingPath(imagePath, g.jsonPath, ".json")
	if err != nil {
		return nil, false, err
	}
	item = DataItem{KeyImageFilepath: imagePath, KeyItemID: ""}

	var annotations []entities.Annotation
	hasSidecar, err := afero.Exists(fs, annotationPath)
	if err != nil {
		return nil, false, errors.Wrapf(err, "checking %s", annotationPath)
	}
	if hasSidecar {
		data, err := afero.ReadFile(fs, annotationPath)
		if err != nil {
			return nil, false, errors.Wrapf(err, "reading %s", annotationPath)
		}
		itemID, parsed, err := entities.ParseAnnotationSidecar(data)
		if err != nil {
			return nil, false, err
		}
		item[KeyItemID] = itemID
		annotations = parsed
	}

	if g.annotationType != entities.AnnotationNone {
		targets, err := g.collectTargets(imagePath, annotations)
		if err != nil {
			return nil, false, err
		}
		for k, v := range targets {
			item[k] = v
		}
		if len(item.Labels()) == 0 {
			log.WithField("path", imagePath).Debug("empty annotation for image")
			empty = true
		}
	}

	if g.annotationType == entities.AnnotationSegmentation {
		maskPath, err := g.siblingPath(imagePath, g.maskPath, ".png")
		if err != nil {
			return nil, false, err
		}
		hasMask, err := afero.Exists(fs, maskPath)
		if err != nil {
			return nil, false, errors.Wrapf(err, "checking %s", maskPath)
		}
		if !hasMask {
			log.WithField("path", imagePath).Debug("missing instance mask for image")
			empty = true
		}
		item[string(entities.AnnotationSegmentation)] = maskPath
	}
	item[KeyAnnotationFilepath] = annotationPath
	return item, empty, nil
}

// collectTargets extracts class ids, labels, boxes and (for polygons) point
// lists from the human-made annotations of the requested type. Records of
// other types are ignored whatever their type.
func (g *Generator) collectTargets(imagePath string, annotations []entities.Annotation) (DataItem, error) {
	var (
		classIDs []int
		labels   []string
		boxes    [][4]float64
		polygons [][]entities.Point
	)
	for _, a := range annotations {
		if a.IsModelGenerated() || a.Type != g.annotationType {
			continue
		}
		switch a.Type {
		case entities.AnnotationClassification, entities.AnnotationBox,
			entities.AnnotationSegmentation, entities.AnnotationPolygon:
		default:
			return nil, errors.Wrapf(entities.ErrUnsupportedType, "annotation %q has type %q", a.ID, a.Type)
		}
		if id, ok := g.labels.ID(a.Label); ok {
			classIDs = append(classIDs, id)
		} else {
			log.WithFields(logrus.Fields{"label": a.Label, "path": imagePath}).
				Warn("missing label in label map, keeping the annotation without a class id")
		}
		labels = append(labels, a.Label)
		boxes = append(boxes, a.Box())
		if a.Type == entities.AnnotationPolygon {
			polygons = append(polygons, append([]entities.Point(nil), a.Points...))
		}
	}

	boxArray := NewArray(len(boxes), 4)
	for i, b := range boxes {
		for j, v := range b {
			boxArray.Data[i*4+j] = float32(v)
		}
	}
	targets := DataItem{
		string(entities.AnnotationBox):            boxArray,
		string(entities.AnnotationClassification): classIDs,
		KeyLabels:                                 labels,
	}
	if g.annotationType == entities.AnnotationPolygon {
		targets[string(entities.AnnotationPolygon)] = polygons
	}
	return targets, nil
}

// LabelStatistics counts the labels of every indexed item.
func (g *Generator) LabelStatistics() map[string]int {
	return countLabels(g.items)
}

func countLabels(items []DataItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		for _, l := range item.Labels() {
			counts[l]++
		}
	}
	return counts
}
