package datasets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/labelbowl/entities"
)

const testRoot = "/data/pets"

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(10 * x), G: uint8(10 * y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// maskBytes encodes a gray PNG whose pixels hold the given ids (row-major).
func maskBytes(t *testing.T, w, h int, ids []uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, ids)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sidecar(t *testing.T, filename string, annotations ...entities.Annotation) []byte {
	t.Helper()
	data, err := entities.MarshalAnnotations("id-"+path.Base(filename), filename, annotations)
	require.NoError(t, err)
	return data
}

// binarySidecar writes one binary record per label, each with a tiny mask.
func binarySidecar(t *testing.T, filename string, labels ...string) []byte {
	t.Helper()
	mask := "data:image/png;base64," + base64.StdEncoding.EncodeToString(maskBytes(t, 2, 2, []uint8{0, 255, 0, 0}))
	records := make([]map[string]any, len(labels))
	for i, l := range labels {
		records[i] = map[string]any{"id": fmt.Sprintf("a%d", i), "type": "binary", "label": l, "coordinates": mask}
	}
	data, err := json.Marshal(map[string]any{"id": "id-" + path.Base(filename), "filename": filename, "annotations": records})
	require.NoError(t, err)
	return data
}

func box(label string, l, t, r, b float64) entities.Annotation {
	return entities.Annotation{Type: entities.AnnotationBox, Label: label, Left: l, Top: t, Right: r, Bottom: b}
}

func class(label string) entities.Annotation {
	return entities.Annotation{Type: entities.AnnotationClassification, Label: label}
}

type fakeFile struct {
	filename string
	content  []byte
	sidecar  []byte
	instance []byte
}

// fakeSource lays its files out the way a platform download does.
type fakeSource struct {
	fs        afero.Fs
	labels    map[string]int
	files     []fakeFile
	downloads int
	options   []entities.ViewAnnotationOption
}

func newFakeSource(fs afero.Fs, labels ...string) *fakeSource {
	m := make(map[string]int, len(labels))
	for i, l := range labels {
		m[l] = i + 1
	}
	return &fakeSource{fs: fs, labels: m}
}

func (s *fakeSource) add(f fakeFile) *fakeSource {
	s.files = append(s.files, f)
	return s
}

func (s *fakeSource) DatasetName() string { return "pets" }

func (s *fakeSource) DatasetID() string { return "ds-1" }

func (s *fakeSource) InstanceMap() map[string]int { return s.labels }

func (s *fakeSource) SetInstanceMap(m map[string]int) { s.labels = m }

func (s *fakeSource) Download(_ context.Context, filters *entities.Filters, localPath string, options []entities.ViewAnnotationOption) (*entities.Manifest, error) {
	s.downloads++
	s.options = options
	manifest := &entities.Manifest{LocalPath: localPath}
	for _, f := range s.files {
		doc := map[string]any{"type": string(entities.ItemTypeFile), "filename": f.filename, "name": path.Base(f.filename)}
		if !filters.Match(doc) {
			continue
		}
		entry := entities.ManifestEntry{ItemID: "id-" + path.Base(f.filename), ImagePath: entities.ItemPath(localPath, f.filename)}
		if err := s.write(entry.ImagePath, f.content); err != nil {
			return nil, err
		}
		for _, option := range options {
			switch {
			case option == entities.ViewAnnotationJSON && f.sidecar != nil:
				entry.AnnotationPath = entities.AnnotationPath(localPath, f.filename)
				if err := s.write(entry.AnnotationPath, f.sidecar); err != nil {
					return nil, err
				}
			case option == entities.ViewAnnotationInstance && f.instance != nil:
				entry.InstancePath = entities.RenderPath(localPath, f.filename, option)
				if err := s.write(entry.InstancePath, f.instance); err != nil {
					return nil, err
				}
			}
		}
		manifest.Entries = append(manifest.Entries, entry)
	}
	return manifest, nil
}

func (s *fakeSource) write(p string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

// boxSource holds three annotated images, one without annotations, one
// corrupted image and a text file.
func boxSource(t *testing.T, fs afero.Fs) *fakeSource {
	t.Helper()
	src := newFakeSource(fs, "cat", "dog")
	img := pngBytes(t, 10, 8)
	src.add(fakeFile{filename: "/b.png", content: img, sidecar: sidecar(t, "/b.png", box("dog", 1, 2, 3, 4))})
	src.add(fakeFile{filename: "/a.png", content: img, sidecar: sidecar(t, "/a.png", box("cat", 0, 0, 5, 5), box("dog", 2, 2, 6, 6))})
	src.add(fakeFile{filename: "/sub/c.PNG", content: img, sidecar: sidecar(t, "/sub/c.PNG", box("cat", 1, 1, 2, 2))})
	src.add(fakeFile{filename: "/empty.png", content: img, sidecar: sidecar(t, "/empty.png")})
	src.add(fakeFile{filename: "/broken.png", content: []byte("abc"), sidecar: sidecar(t, "/broken.png", box("cat", 0, 0, 1, 1))})
	src.add(fakeFile{filename: "/notes.txt", content: []byte("not an image")})
	return src
}

func imagePaths(items []DataItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ImageFilepath()
	}
	return out
}

func TestNewGenerator_IndexesCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := boxSource(t, fs)

	g, err := NewGenerator(context.Background(), src, entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false))
	require.NoError(t, err)
	require.Equal(t, 1, src.downloads)
	require.Equal(t, []entities.ViewAnnotationOption{entities.ViewAnnotationJSON}, src.options)

	require.Equal(t, 3, g.NumItems())
	require.Equal(t, 3, g.Len())
	require.Equal(t, []string{
		filepath.Join(testRoot, "items", "a.png"),
		filepath.Join(testRoot, "items", "b.png"),
		filepath.Join(testRoot, "items", "sub", "c.PNG"),
	}, imagePaths(g.Items()))
	require.Equal(t, map[string]int{"cat": 2, "dog": 2}, g.LabelStatistics())
	require.Equal(t, int64(0), g.Seed())
	require.Equal(t, "pets", g.Name())

	first := g.Items()[0]
	require.Equal(t, "id-a.png", first[KeyItemID])
	require.Equal(t, []string{"cat", "dog"}, first.Labels())
	require.Equal(t, []int{1, 2}, first.ClassIDs())
	require.Equal(t, filepath.Join(testRoot, "json", "a.json"), first[KeyAnnotationFilepath])
	boxes := first[string(entities.AnnotationBox)].(*Array)
	require.Equal(t, []int{2, 4}, boxes.Shape)
	require.Equal(t, []float32{0, 0, 5, 5, 2, 2, 6, 6}, boxes.Data)
}

func TestNewGenerator_IncludeEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(context.Background(), boxSource(t, fs), entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false), WithIgnoreEmpty(false))
	require.NoError(t, err)
	require.Equal(t, 4, g.NumItems())
	require.Contains(t, imagePaths(g.Items()), filepath.Join(testRoot, "items", "empty.png"))
}

func TestNewGenerator_NoAnnotationType(t *testing.T) {
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(context.Background(), boxSource(t, fs), entities.AnnotationNone,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false))
	require.NoError(t, err)
	require.Equal(t, 4, g.NumItems())

	v, err := g.GetItem(context.Background(), 0)
	require.NoError(t, err)
	item := v.(DataItem)
	require.Nil(t, item[KeyAnnotations])
	require.Equal(t, []int{8, 10, 3}, item[KeyImage].(*Array).Shape)
}

func TestNewGenerator_CacheReuseAndOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := boxSource(t, fs)
	opts := []Option{WithFs(fs), WithDataPath(testRoot)}

	_, err := NewGenerator(context.Background(), src, entities.AnnotationBox, opts...)
	require.NoError(t, err)
	_, err = NewGenerator(context.Background(), src, entities.AnnotationBox, opts...)
	require.NoError(t, err)
	require.Equal(t, 1, src.downloads)

	stale := filepath.Join(testRoot, "items", "stale.png")
	require.NoError(t, afero.WriteFile(fs, stale, pngBytes(t, 2, 2), 0o644))
	_, err = NewGenerator(context.Background(), src, entities.AnnotationBox, append(opts, WithOverwrite(true))...)
	require.NoError(t, err)
	require.Equal(t, 2, src.downloads)
	exists, err := afero.Exists(fs, stale)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestNewGenerator_Filters(t *testing.T) {
	fs := afero.NewMemMapFs()
	filters := entities.NewFilters().Add("filename", entities.FilterGlob, "/sub/*")
	g, err := NewGenerator(context.Background(), boxSource(t, fs), entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithFilters(filters))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumItems())
}

func TestNewGenerator_UnsupportedType(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewGenerator(context.Background(), boxSource(t, fs), entities.AnnotationPoint,
		WithFs(fs), WithDataPath(testRoot))
	require.ErrorIs(t, err, entities.ErrUnsupportedType)
}

func TestNewGenerator_IgnoresUnsupportedRecordsOfOtherTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, "cat")
	raw := `{"id":"x","annotations":[` +
		`{"id":"b","type":"box","label":"cat","coordinates":[{"x":0,"y":0},{"x":2,"y":3}]},` +
		`{"id":"p","type":"point","label":"cat","coordinates":[{"x":1,"y":1}]},` +
		`{"id":"e","type":"ellipse","label":"cat","coordinates":[{"x":1,"y":1}]}]}`
	src.add(fakeFile{filename: "/x.png", content: pngBytes(t, 4, 4), sidecar: []byte(raw)})

	g, err := NewGenerator(context.Background(), src, entities.AnnotationBox,
		WithFs(fs), WithDataPath("/data/points"))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumItems())
	item := g.Items()[0]
	require.Equal(t, []string{"cat"}, item.Labels())
	require.Equal(t, []float32{0, 0, 2, 3}, item[string(entities.AnnotationBox)].(*Array).Data)

	g, err = NewGenerator(context.Background(), src, entities.AnnotationClassification,
		WithFs(fs), WithDataPath("/data/points"))
	require.NoError(t, err)
	require.Zero(t, g.NumItems())
}

func TestNewGenerator_UnmappedLabelKeptWithoutClassID(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, "cat", "dog")
	src.add(fakeFile{filename: "/bird.png", content: pngBytes(t, 4, 4), sidecar: sidecar(t, "/bird.png", box("bird", 1, 1, 3, 3))})

	g, err := NewGenerator(context.Background(), src, entities.AnnotationBox, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumItems())
	item := g.Items()[0]
	require.Equal(t, []string{"bird"}, item.Labels())
	require.Empty(t, item.ClassIDs())
	boxes := item[string(entities.AnnotationBox)].(*Array)
	require.Equal(t, []int{1, 4}, boxes.Shape)
	require.Equal(t, []float32{1, 1, 3, 3}, boxes.Data)
	require.Equal(t, map[string]int{"bird": 1}, g.LabelStatistics())
}

func TestNewGenerator_SkipsModelAnnotations(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, "cat")
	predicted := box("cat", 0, 0, 1, 1)
	predicted.Metadata = map[string]any{"user": map[string]any{"model": map[string]any{"name": "detector"}}}
	src.add(fakeFile{filename: "/p.png", content: pngBytes(t, 4, 4), sidecar: sidecar(t, "/p.png", predicted)})
	src.add(fakeFile{filename: "/h.png", content: pngBytes(t, 4, 4), sidecar: sidecar(t, "/h.png", box("cat", 0, 0, 1, 1))})

	g, err := NewGenerator(context.Background(), src, entities.AnnotationBox, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumItems())
	require.Equal(t, filepath.Join(testRoot, "items", "h.png"), g.Items()[0].ImageFilepath())
}

func TestNewGenerator_OtherTypesIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, "cat")
	src.add(fakeFile{filename: "/m.png", content: pngBytes(t, 4, 4), sidecar: sidecar(t, "/m.png", box("cat", 0, 0, 1, 1), class("cat"))})

	g, err := NewGenerator(context.Background(), src, entities.AnnotationClassification, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumItems())
	require.Equal(t, []string{"cat"}, g.Items()[0].Labels())
}

func TestNewGenerator_IDToLabelMap(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := boxSource(t, fs)
	g, err := NewGenerator(context.Background(), src, entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithIDToLabelMap(map[int]string{5: "cat", 6: "dog"}), WithShuffle(false))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"cat": 5, "dog": 6}, src.labels)
	require.Equal(t, []int{5, 6}, g.Items()[0].ClassIDs())
	require.Equal(t, 2, g.NumClasses())

	_, err = NewGenerator(context.Background(), src, entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithIDToLabelMap(map[int]string{1: "cat", 2: "cat"}))
	require.Error(t, err)
}

func TestGenerator_Shuffle(t *testing.T) {
	build := func(opts ...Option) []string {
		fs := afero.NewMemMapFs()
		src := newFakeSource(fs, "cat")
		for i := range 10 {
			name := fmt.Sprintf("/img_%02d.png", i)
			src.add(fakeFile{filename: name, content: pngBytes(t, 2, 2), sidecar: sidecar(t, name, class("cat"))})
		}
		g, err := NewGenerator(context.Background(), src, entities.AnnotationClassification,
			append([]Option{WithFs(fs), WithDataPath(testRoot)}, opts...)...)
		require.NoError(t, err)
		return imagePaths(g.Items())
	}

	sorted := build(WithShuffle(false))
	require.IsIncreasing(t, sorted)

	first := build(WithSeed(7))
	require.Equal(t, first, build(WithSeed(7)))
	require.ElementsMatch(t, sorted, first)

	fs := afero.NewMemMapFs()
	g, err := NewGenerator(context.Background(), boxSource(t, fs), entities.AnnotationBox, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	require.Equal(t, DefaultSeed, g.Seed())
}

func classSource(t *testing.T, fs afero.Fs, n int) *fakeSource {
	t.Helper()
	src := newFakeSource(fs, "cat", "dog")
	for i := range n {
		name := fmt.Sprintf("/img_%02d.png", i)
		label := "cat"
		if i%2 == 1 {
			label = "dog"
		}
		src.add(fakeFile{filename: name, content: pngBytes(t, 3, 2), sidecar: sidecar(t, name, class(label))})
	}
	return src
}

func TestGenerator_Batching(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(ctx, classSource(t, fs, 10), entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false), WithBatchSize(4))
	require.NoError(t, err)
	require.Equal(t, 10, g.NumItems())
	require.Equal(t, 3, g.Len())

	v, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	require.Len(t, v.([]DataItem), 4)

	v, err = g.GetItem(ctx, 2)
	require.NoError(t, err)
	last := v.([]DataItem)
	require.Len(t, last, 2)
	require.Equal(t, filepath.Join(testRoot, "items", "img_08.png"), last[0].ImageFilepath())
	require.Equal(t, filepath.Join(testRoot, "items", "img_09.png"), last[1].ImageFilepath())

	_, err = g.GetItem(ctx, 3)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = g.GetItem(ctx, "0")
	require.ErrorIs(t, err, ErrUnsupportedIndex)

	v, err = g.GetItem(ctx, -1)
	require.NoError(t, err)
	require.Equal(t, imagePaths(last), imagePaths(v.([]DataItem)))
	_, err = g.GetItem(ctx, -4)
	require.ErrorIs(t, err, ErrOutOfRange)

	v, err = g.GetItem(ctx, Slice{Start: -3, Stop: 10})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(testRoot, "items", "img_07.png"),
		filepath.Join(testRoot, "items", "img_08.png"),
		filepath.Join(testRoot, "items", "img_09.png"),
	}, imagePaths(v.([]DataItem)))

	v, err = g.GetItem(ctx, Slice{Start: 8, Stop: 100})
	require.NoError(t, err)
	require.Len(t, v.([]DataItem), 2)

	v, err = g.GetItem(ctx, Slice{Start: -1, Stop: -4, Step: -1})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(testRoot, "items", "img_09.png"),
		filepath.Join(testRoot, "items", "img_08.png"),
		filepath.Join(testRoot, "items", "img_07.png"),
	}, imagePaths(v.([]DataItem)))

	v, err = g.GetItem(ctx, Slice{Start: 5, Stop: 0, Step: -2})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(testRoot, "items", "img_05.png"),
		filepath.Join(testRoot, "items", "img_03.png"),
		filepath.Join(testRoot, "items", "img_01.png"),
	}, imagePaths(v.([]DataItem)))

	var batches int
	for v, err := range g.All(ctx) {
		require.NoError(t, err)
		require.NotEmpty(t, v)
		batches++
	}
	require.Equal(t, 3, batches)
}

func TestGenerator_ParallelBatchKeepsOrder(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	src := classSource(t, fs, 10)
	sequential, err := NewGenerator(ctx, src, entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithBatchSize(10))
	require.NoError(t, err)
	parallel, err := NewGenerator(ctx, src, entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithBatchSize(10), WithNumWorkers(4))
	require.NoError(t, err)

	a, err := sequential.GetItem(ctx, 0)
	require.NoError(t, err)
	b, err := parallel.GetItem(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, imagePaths(a.([]DataItem)), imagePaths(b.([]DataItem)))
}

func TestGenerator_CollateBatch(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(ctx, classSource(t, fs, 4), entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false), WithBatchSize(3), WithCollate(DefaultCollate))
	require.NoError(t, err)

	v, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	batch := v.(DataItem)
	require.Equal(t, []int{3, 2, 3, 3}, batch[KeyImage].(*Array).Shape)
	require.Equal(t, []int{3, 1}, batch[KeyAnnotations].(*Array).Shape)
	require.Len(t, batch[KeyImageFilepath], 3)
}

func TestGenerator_GetItemBox(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(ctx, boxSource(t, fs), entities.AnnotationBox,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false), WithReturnOriginals(true))
	require.NoError(t, err)

	v, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	item := v.(DataItem)
	img := item[KeyImage].(*Array)
	require.Equal(t, []int{8, 10, 3}, img.Shape)
	require.Equal(t, []float32{30, 20, 100}, img.Data[(2*10+3)*3:(2*10+3)*3+3])
	boxes := item[KeyAnnotations].(*Array)
	require.Equal(t, []float32{0, 0, 5, 5, 2, 2, 6, 6}, boxes.Data)
	require.Equal(t, img, item[KeyOrigImage])
	require.Equal(t, boxes, item[KeyOrigAnnotations])

	boxes.Data[0] = 99
	item[KeyLabels] = []string{"changed"}
	again, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, float32(0), again.(DataItem)[KeyAnnotations].(*Array).Data[0])
	require.Equal(t, []string{"cat", "dog"}, again.(DataItem).Labels())

	last, err := g.GetItem(ctx, -1)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(testRoot, "items", "sub", "c.PNG"), last.(DataItem).ImageFilepath())

	_, err = g.GetItem(ctx, 3)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = g.GetItem(ctx, -4)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestGenerator_ToCategorical(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(ctx, classSource(t, fs, 2), entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithShuffle(false), WithToCategorical(true))
	require.NoError(t, err)

	v, err := g.GetItem(ctx, 1)
	require.NoError(t, err)
	onehot := v.(DataItem)[KeyAnnotations].(*Array)
	require.Equal(t, []int{1, 3}, onehot.Shape)
	require.Equal(t, []float32{0, 0, 1}, onehot.Data)
}

func segmentationSource(t *testing.T, fs afero.Fs) *fakeSource {
	t.Helper()
	src := newFakeSource(fs, "cat", "dog")
	src.add(fakeFile{
		filename: "/with_mask.png",
		content:  pngBytes(t, 2, 2),
		sidecar:  binarySidecar(t, "/with_mask.png", "cat", "dog"),
		instance: maskBytes(t, 2, 2, []uint8{0, 1, 2, 2}),
	})
	src.add(fakeFile{
		filename: "/without_mask.png",
		content:  pngBytes(t, 2, 2),
		sidecar:  binarySidecar(t, "/without_mask.png", "cat"),
	})
	return src
}

func TestGenerator_Segmentation(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	src := segmentationSource(t, fs)
	g, err := NewGenerator(ctx, src, entities.AnnotationSegmentation, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	require.Equal(t, []entities.ViewAnnotationOption{entities.ViewAnnotationJSON, entities.ViewAnnotationInstance}, src.options)
	require.Equal(t, 1, g.NumItems())

	v, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	item := v.(DataItem)
	require.Equal(t, filepath.Join(testRoot, "instance", "with_mask.png"), item[string(entities.AnnotationSegmentation)])
	mask := item[KeyAnnotations].(*Array)
	require.Equal(t, []int{2, 2}, mask.Shape)
	require.Equal(t, []float32{0, 1, 2, 2}, mask.Data)

	cat, err := NewGenerator(ctx, src, entities.AnnotationSegmentation,
		WithFs(fs), WithDataPath(testRoot), WithToCategorical(true))
	require.NoError(t, err)
	v, err = cat.GetItem(ctx, 0)
	require.NoError(t, err)
	onehot := v.(DataItem)[KeyAnnotations].(*Array)
	require.Equal(t, []int{4, 3}, onehot.Shape)
	require.Equal(t, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 1}, onehot.Data)
}

func TestGenerator_Polygons(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, "cat")
	poly := entities.Annotation{Type: entities.AnnotationPolygon, Label: "cat", Points: []entities.Point{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 2, Y: 3}}}
	src.add(fakeFile{filename: "/poly.png", content: pngBytes(t, 4, 4), sidecar: sidecar(t, "/poly.png", poly)})

	g, err := NewGenerator(ctx, src, entities.AnnotationPolygon, WithFs(fs), WithDataPath(testRoot))
	require.NoError(t, err)
	v, err := g.GetItem(ctx, 0)
	require.NoError(t, err)
	item := v.(DataItem)
	require.Equal(t, [][]entities.Point{poly.Points}, item[KeyAnnotations])
	require.Equal(t, []float32{1, 1, 3, 3}, item[string(entities.AnnotationBox)].(*Array).Data)
}
