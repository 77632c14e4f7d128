package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	return NewLocalStore(filepath.Join(t.TempDir(), "saved_images.json"))
}

func sampleImage(url string) models.SavedImage {
	return models.SavedImage{
		URL:            url,
		AnswerPosition: models.BoundingBox{XMin: 0.1, YMin: 0.2, XMax: 0.3, YMax: 0.4},
		CreatedAt:      time.Now().Format(time.RFC3339),
	}
}

func TestLoadImagesMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	images, err := store.LoadImages()
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestSaveAndLoadImages(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SaveImage(sampleImage("https://img.test/a.png")))
	require.NoError(t, store.SaveImage(sampleImage("https://img.test/b.png")))

	images, err := store.LoadImages()
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "https://img.test/a.png", images[0].URL)
	assert.Equal(t, 0.3, images[0].AnswerPosition.XMax)
}

func TestSaveImageReplacesByURL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	image := sampleImage("https://img.test/a.png")
	require.NoError(t, store.SaveImage(image))

	image.AnswerPosition = models.BoundingBox{XMin: 0.5, YMin: 0.5, XMax: 0.6, YMax: 0.6}
	require.NoError(t, store.SaveImage(image))

	images, err := store.LoadImages()
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 0.5, images[0].AnswerPosition.XMin)
}

func TestUpdateImagePosition(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SaveImage(sampleImage("https://img.test/a.png")))

	newBox := models.BoundingBox{XMin: 0.7, YMin: 0.7, XMax: 0.8, YMax: 0.8}
	require.NoError(t, store.UpdateImagePosition("https://img.test/a.png", newBox))

	images, err := store.LoadImages()
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, newBox, images[0].AnswerPosition)
}

func TestUpdateImagePositionMissingURL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.UpdateImagePosition("https://img.test/missing.png",
		models.BoundingBox{XMin: 0.1, YMin: 0.1, XMax: 0.2, YMax: 0.2})
	assert.Error(t, err)
}

func TestDeleteImage(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SaveImage(sampleImage("https://img.test/a.png")))
	require.NoError(t, store.SaveImage(sampleImage("https://img.test/b.png")))
	require.NoError(t, store.DeleteImage("https://img.test/a.png"))

	images, err := store.LoadImages()
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "https://img.test/b.png", images[0].URL)
}
