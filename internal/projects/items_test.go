package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
)

type mapBlobs map[string][]byte

func (m mapBlobs) Download(_ context.Context, url string) ([]byte, error) {
	data, ok := m[url]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return data, nil
}

func record(item string, status domain.JobStatus, result *domain.JobResult, errMsg string) domain.ItemRecord {
	return domain.ItemRecord{
		ProjectID: "p1",
		Stage:     "image",
		ItemID:    item,
		Status:    status,
		Result:    result,
		Error:     errMsg,
		Steps: map[string]domain.StepRecord{
			"image": {JobID: item + "-job", Status: status, Capability: domain.CapabilityImage, Result: result, Error: errMsg},
		},
	}
}

func TestSaveItemOverwritesOnlyThatItem(t *testing.T) {
	ctx := context.Background()
	items := NewItems(docstore.NewMemoryStore())

	require.NoError(t, items.SaveItem(ctx, record("a", domain.JobStatusDone, &domain.JobResult{ImageURL: "/media/a.png"}, "")))
	require.NoError(t, items.SaveItem(ctx, record("b", domain.JobStatusFailed, nil, "boom")))
	require.NoError(t, items.SaveItem(ctx, record("b", domain.JobStatusDone, &domain.JobResult{ImageURL: "/media/b.png"}, "")))

	b, err := items.Item(ctx, "p1", "image", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, b.Status)
	assert.Empty(t, b.Error, "a successful rerun clears the old error")

	a, err := items.Item(ctx, "p1", "image", "a")
	require.NoError(t, err)
	assert.Equal(t, "/media/a.png", a.Result.ImageURL)

	_, err = items.Item(ctx, "p1", "image", "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, items.SaveItem(ctx, domain.ItemRecord{ProjectID: "p1"}))
}

func TestExportCollectsFinishedMedia(t *testing.T) {
	ctx := context.Background()
	items := NewItems(docstore.NewMemoryStore())
	require.NoError(t, items.SaveItem(ctx, record("a", domain.JobStatusDone, &domain.JobResult{ImageURL: "/media/a.png"}, "")))
	require.NoError(t, items.SaveItem(ctx, record("b", domain.JobStatusFailed, nil, "boom")))

	assets, err := items.Export(ctx, "p1", "image", mapBlobs{"/media/a.png": []byte("png")})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "a-image.png", assets[0].Filename)
	assert.Equal(t, "image/png", assets[0].MIME)
	assert.Equal(t, "manifest.json", assets[1].Filename)
	assert.Contains(t, string(assets[1].Data), `"itemId": "b"`)
}

func TestExportEmptyStage(t *testing.T) {
	items := NewItems(docstore.NewMemoryStore())
	_, err := items.Export(context.Background(), "p1", "image", mapBlobs{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
