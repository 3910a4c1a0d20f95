package bucket

import (
	"bytes"
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/labelbowl/datasets"
	"github.com/Noofbiz/labelbowl/entities"
)

var _ datasets.Source = (*Source)(nil)

func TestKeys(t *testing.T) {
	assert.Equal(t, "exports/pets/items/train/cat.jpg", itemKey("exports/pets", "/train/cat.jpg"))
	assert.Equal(t, "exports/pets/json/train/cat.json", sidecarKey("exports/pets", "/train/cat.jpg"))
	assert.Equal(t, "exports/pets/instance/train/cat.png", renderKey("exports/pets", "/train/cat.jpg", entities.ViewAnnotationInstance))
	assert.Equal(t, "items/a.png", itemKey("", "/a.png"))
	assert.Equal(t, "ontology.json", objectKey("", ontologyKey))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

// TestSource_Integration requires a running MinIO instance.
// Skip if not available.
func TestSource_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	const bucketName = "test-labelbowl"
	exists, err := client.BucketExists(ctx, bucketName)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}))
	}

	put := func(key string, data []byte) {
		t.Helper()
		_, err := client.PutObject(ctx, bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		require.NoError(t, err)
	}
	put("pets/ontology.json", []byte(`{"id":"o","roots":[{"tag":"cat"},{"tag":"dog"}]}`))
	put("pets/items/train/cat.png", []byte("not really a png"))
	put("pets/json/train/cat.json", []byte(`{"id":"item-cat","annotations":[]}`))
	put("pets/items/val/dog.png", []byte("not really a png either"))

	fs := afero.NewMemMapFs()
	src, err := NewSource(ctx, client, bucketName, "pets", nil, WithFs(fs), WithWorkers(2))
	require.NoError(t, err)
	require.Equal(t, "pets", src.DatasetName())
	require.Equal(t, bucketName+"/pets", src.DatasetID())
	require.Equal(t, map[string]int{"cat": 1, "dog": 2}, src.InstanceMap())

	filters := entities.NewFilters().Add("filename", entities.FilterGlob, "/train/*")
	manifest, err := src.Download(ctx, filters, "/cache", []entities.ViewAnnotationOption{entities.ViewAnnotationJSON, entities.ViewAnnotationInstance})
	require.NoError(t, err)
	require.Len(t, manifest.Entries, 1)

	entry := manifest.Entries[0]
	assert.Equal(t, "item-cat", entry.ItemID)
	assert.Empty(t, entry.InstancePath)
	got, err := afero.ReadFile(fs, entities.ItemPath("/cache", "/train/cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(got))

	all, err := src.Download(ctx, nil, "/cache2", nil)
	require.NoError(t, err)
	assert.Len(t, all.Entries, 2)
}
