package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	var tpl domain.PromptTemplate
	err := s.Get(context.Background(), CollectionTemplates, "theme:text", &tpl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStoreReplaceAndMerge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := domain.ItemRecord{ProjectID: "p1", Stage: "image", ItemID: "img-1", BatchID: "b1", Status: domain.JobStatusDone}
	require.NoError(t, s.Set(ctx, CollectionProjectItems, "p1:image:img-1", rec, false))

	require.NoError(t, s.Set(ctx, CollectionProjectItems, "p1:image:img-1", map[string]any{"batchId": "b2"}, true))

	var got domain.ItemRecord
	require.NoError(t, s.Get(ctx, CollectionProjectItems, "p1:image:img-1", &got))
	assert.Equal(t, "b2", got.BatchID)
	assert.Equal(t, domain.JobStatusDone, got.Status, "merge keeps untouched fields")

	require.NoError(t, s.Set(ctx, CollectionProjectItems, "p1:image:img-1", map[string]any{"itemId": "img-1"}, false))
	got = domain.ItemRecord{}
	require.NoError(t, s.Get(ctx, CollectionProjectItems, "p1:image:img-1", &got))
	assert.Empty(t, got.BatchID, "replace drops fields")
}

func TestMemoryStoreListVersionsSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, v := range []int{3, 1, 2} {
		doc := domain.PromptVersion{StageType: "theme", PromptID: "text", Version: v}
		require.NoError(t, s.Set(ctx, CollectionVersions, VersionID("theme", "text", v), doc, false))
	}
	other := domain.PromptVersion{StageType: "image", PromptID: "text", Version: 9}
	require.NoError(t, s.Set(ctx, CollectionVersions, VersionID("image", "text", 9), other, false))

	versions, err := s.ListVersions(ctx, "theme", "text")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{versions[0].Version, versions[1].Version, versions[2].Version})
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, CollectionTemplates, "theme:text", domain.PromptTemplate{StageType: "theme"}, false))
	require.NoError(t, s.Delete(ctx, CollectionTemplates, "theme:text"))
	assert.True(t, errors.Is(s.Delete(ctx, CollectionTemplates, "theme:text"), domain.ErrNotFound))
	assert.Equal(t, 0, s.Len(CollectionTemplates))
}

func TestMemoryStoreFindAllRequiresSlicePointer(t *testing.T) {
	s := NewMemoryStore()
	var rec domain.ItemRecord
	assert.Error(t, s.FindAll(context.Background(), CollectionProjectItems, nil, &rec))
}

func TestMemoryStoreMergeWhileReading(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	const id = "p1:theme:a"
	require.NoError(t, s.Set(ctx, CollectionProjectItems, id, domain.ItemRecord{ProjectID: "p1", Stage: "theme", ItemID: "a"}, false))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = s.Set(ctx, CollectionProjectItems, id, map[string]any{"batchId": fmt.Sprint("b", i)}, true)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			var rec domain.ItemRecord
			_ = s.Get(ctx, CollectionProjectItems, id, &rec)
		}
	}()
	wg.Wait()

	var got domain.ItemRecord
	require.NoError(t, s.Get(ctx, CollectionProjectItems, id, &got))
	assert.Equal(t, "b1999", got.BatchID)
	assert.Equal(t, "a", got.ItemID)
}
