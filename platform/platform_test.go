package platform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/labelbowl/entities"
	"github.com/Noofbiz/labelbowl/platformtest"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestClient serves fake on an httptest server and returns a client
// writing to an in-memory filesystem.
func newTestClient(t *testing.T, fake *platformtest.Server) (*Client, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	c, err := New(Config{BaseURL: srv.URL, Token: fake.Token, Fs: fs, DownloadWorkers: 4})
	require.NoError(t, err)
	return c, fs
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestDatasets_Get(t *testing.T) {
	fake := platformtest.NewServer()
	id := fake.AddDataset("pets", "cat", "dog")
	c, _ := newTestClient(t, fake)

	ds, err := c.Datasets.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "pets", ds.Name)
	require.Equal(t, id, ds.ID)
	require.Equal(t, map[string]int{"cat": 1, "dog": 2}, ds.InstanceMap())
	require.NotNil(t, ds.Items())

	names, err := c.Datasets.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pets", names[id])
}

func TestDatasets_GetMissing(t *testing.T) {
	c, _ := newTestClient(t, platformtest.NewServer())
	_, err := c.Datasets.Get(context.Background(), "nope")
	require.Error(t, err)
	require.True(t, entities.IsNotFound(err))
}

func TestClient_Token(t *testing.T) {
	fake := platformtest.NewServer()
	fake.Token = "secret"
	id := fake.AddDataset("pets")

	c, _ := newTestClient(t, fake)
	_, err := c.Datasets.Get(context.Background(), id)
	require.NoError(t, err)

	srv := httptest.NewServer(fake)
	defer srv.Close()
	anon, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = anon.Datasets.Get(context.Background(), id)
	var pe *entities.PlatformError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "401", pe.Code)
}

func TestItems_ListGetUpdateDelete(t *testing.T) {
	fake := platformtest.NewServer()
	dsID := fake.AddDataset("pets", "cat")
	catID, err := fake.AddItem(dsID, "/train/cat.png", pngBytes(t, 4, 3),
		[]entities.Annotation{{Type: entities.AnnotationClassification, Label: "cat"}}, nil)
	require.NoError(t, err)
	_, err = fake.AddItem(dsID, "/val/dog.png", pngBytes(t, 2, 2), nil, nil)
	require.NoError(t, err)
	_, err = fake.AddDir(dsID, "/train")
	require.NoError(t, err)

	c, _ := newTestClient(t, fake)
	ctx := context.Background()
	ds, err := c.Datasets.Get(ctx, dsID)
	require.NoError(t, err)

	items, err := ds.ListItems(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Same(t, ds, item.Dataset())
	}
	require.Equal(t, "/train/cat.png", items[0].Filename)
	require.Equal(t, "image/png", items[0].Mimetype)
	require.Equal(t, 4, *items[0].Width)
	require.Equal(t, 3, *items[0].Height)

	glob := entities.NewFilters().Add("filename", entities.FilterGlob, "/val/*")
	items, err = c.Items.List(ctx, ds, glob)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "dog.png", items[0].Name)

	paged := entities.NewFilters()
	paged.PageSize = 1
	items, err = c.Items.List(ctx, ds, paged)
	require.NoError(t, err)
	require.Len(t, items, 2)

	item, err := c.Items.Get(ctx, catID)
	require.NoError(t, err)
	require.True(t, *item.Annotated)
	require.Nil(t, item.Dataset())

	annotations, err := item.ListAnnotations(ctx)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	require.Equal(t, "cat", annotations[0].Label)

	md := item.Metadata
	md["user"] = map[string]any{"split": "train"}
	item.SetMetadata(md)
	updated, err := item.Update(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "train", updated.Metadata["user"].(map[string]any)["split"])
	require.Equal(t, "image/png", updated.Mimetype)

	require.NoError(t, item.Delete(ctx))
	_, err = c.Items.Get(ctx, catID)
	require.True(t, entities.IsNotFound(err))
}

func TestItems_DownloadDataset(t *testing.T) {
	fake := platformtest.NewServer()
	dsID := fake.AddDataset("roads", "road")
	mask := pngBytes(t, 4, 3)
	_, err := fake.AddItem(dsID, "/a/one.png", pngBytes(t, 4, 3),
		[]entities.Annotation{{Type: entities.AnnotationBox, Label: "road", Left: 0, Top: 0, Right: 2, Bottom: 2}},
		map[entities.ViewAnnotationOption][]byte{entities.ViewAnnotationInstance: mask})
	require.NoError(t, err)
	_, err = fake.AddItem(dsID, "/b/two.png", pngBytes(t, 4, 3), nil, nil)
	require.NoError(t, err)

	c, fs := newTestClient(t, fake)
	ds, err := c.Datasets.Get(context.Background(), dsID)
	require.NoError(t, err)

	root := "/cache/roads"
	manifest, err := ds.Download(context.Background(), nil, root,
		[]entities.ViewAnnotationOption{entities.ViewAnnotationJSON, entities.ViewAnnotationInstance})
	require.NoError(t, err)
	require.Len(t, manifest.Entries, 2)
	require.Equal(t, int64(2), fake.StreamRequests())

	first := manifest.Entries[0]
	require.Equal(t, entities.ItemPath(root, "/a/one.png"), first.ImagePath)
	require.Equal(t, entities.AnnotationPath(root, "/a/one.png"), first.AnnotationPath)
	require.Equal(t, entities.RenderPath(root, "/a/one.png", entities.ViewAnnotationInstance), first.InstancePath)

	got, err := afero.ReadFile(fs, first.InstancePath)
	require.NoError(t, err)
	require.Equal(t, mask, got)

	sidecar, err := afero.ReadFile(fs, first.AnnotationPath)
	require.NoError(t, err)
	_, annotations, err := entities.ParseAnnotationSidecar(sidecar)
	require.NoError(t, err)
	require.Equal(t, [4]float64{0, 0, 2, 2}, annotations[0].Box())

	// No instance render for the unannotated item.
	require.Empty(t, manifest.Entries[1].InstancePath)
	exists, err := afero.Exists(fs, entities.AnnotationPath(root, "/b/two.png"))
	require.NoError(t, err)
	require.True(t, exists)
}
