package datasets

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/labelbowl/entities"
)

func TestRandomOverSampler(t *testing.T) {
	x := []int{0, 1, 2, 3, 4}
	y := []int{1, 1, 1, 2, 3}
	xRes, yRes, err := RandomOverSampler{Seed: 42}.FitResample(x, y)
	require.NoError(t, err)
	require.Len(t, xRes, 9)
	require.Equal(t, x, xRes[:5])
	require.Equal(t, []int{1, 1, 1, 2, 3, 2, 2, 3, 3}, yRes)
	require.Equal(t, []int{3, 3, 4, 4}, xRes[5:])

	again, _, err := RandomOverSampler{Seed: 42}.FitResample(x, y)
	require.NoError(t, err)
	require.Equal(t, xRes, again)

	_, _, err = RandomOverSampler{}.FitResample([]int{1}, nil)
	require.Error(t, err)
}

func unbalancedSource(t *testing.T, fs afero.Fs) *fakeSource {
	t.Helper()
	src := newFakeSource(fs, "cat", "dog")
	for _, f := range []struct{ name, label string }{
		{"/c1.png", "cat"}, {"/c2.png", "cat"}, {"/c3.png", "cat"}, {"/d1.png", "dog"},
	} {
		src.add(fakeFile{filename: f.name, content: pngBytes(t, 2, 2), sidecar: sidecar(t, f.name, class(f.label))})
	}
	return src
}

func TestGenerator_ClassBalancing(t *testing.T) {
	fs := afero.NewMemMapFs()
	g, err := NewGenerator(context.Background(), unbalancedSource(t, fs), entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithClassBalancing(true))
	require.NoError(t, err)
	require.Equal(t, 6, g.NumItems())
	require.Equal(t, map[string]int{"cat": 3, "dog": 3}, g.LabelStatistics())
}

func TestGenerator_ClassBalancingWithoutOversampler(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewGenerator(context.Background(), unbalancedSource(t, fs), entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithClassBalancing(true), WithOversampler(nil))
	require.ErrorIs(t, err, ErrMissingOversampler)
}

func TestGenerator_ClassBalancingEmptyClasses(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := unbalancedSource(t, fs)
	src.add(fakeFile{filename: "/bird.png", content: pngBytes(t, 2, 2), sidecar: sidecar(t, "/bird.png", class("bird"))})
	_, err := NewGenerator(context.Background(), src, entities.AnnotationClassification,
		WithFs(fs), WithDataPath(testRoot), WithClassBalancing(true))
	require.ErrorIs(t, err, ErrEmptyClasses)
}

func TestLabelMap(t *testing.T) {
	m, err := NewLabelMap(map[string]int{"dog": 2, "cat": 1})
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
	require.Equal(t, []string{"cat", "dog"}, m.Labels())
	id, ok := m.ID("dog")
	require.True(t, ok)
	require.Equal(t, 2, id)
	label, ok := m.Label(1)
	require.True(t, ok)
	require.Equal(t, "cat", label)
	require.Equal(t, map[int]string{1: "cat", 2: "dog"}, m.IDToLabel())

	_, err = NewLabelMap(map[string]int{"cat": 1, "dog": 1})
	require.Error(t, err)
}
