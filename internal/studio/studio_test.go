package studio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/docstore"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/storage"
)

func TestNewWiresServices(t *testing.T) {
	dir := t.TempDir()
	graphs := filepath.Join(dir, "graphs")
	require.NoError(t, os.MkdirAll(graphs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(graphs, "flyer.yaml"), []byte(`product: flyer
stages:
  copy:
    steps:
      - name: copy
        capability: text
`), 0o644))

	blobs, err := storage.NewFileStore(filepath.Join(dir, "media"), "http://localhost/media")
	require.NoError(t, err)
	cfg := &infra.Config{GraphDir: graphs, EngineConcurrency: 2}

	svc, err := New(context.Background(), cfg, Deps{
		Docs:       docstore.NewMemoryStore(),
		Blobs:      blobs,
		Registerer: prometheus.NewRegistry(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{AdaptorGemini, AdaptorQwen, AdaptorStatic}, svc.Registry.IDs())
	assert.Contains(t, svc.Catalog.Products(), "flyer")
	assert.Contains(t, svc.Catalog.Products(), "sns")
	assert.Equal(t, 2, svc.Engine.Config().Concurrency)

	_, err = svc.Registry.Resolve(AdaptorQwen, domain.CapabilityText)
	assert.ErrorIs(t, err, domain.ErrAdaptorUnavailable)
	_, err = svc.Registry.Resolve(AdaptorGemini, domain.CapabilityVideo)
	assert.NoError(t, err)
}

func TestNewRegistryWithOpenAIKey(t *testing.T) {
	blobs, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	reg, err := NewRegistry(context.Background(), &infra.Config{OpenAIAPIKey: "sk-test"}, blobs, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Contains(t, reg.IDs(), AdaptorOpenAI)

	_, err = NewRegistry(context.Background(), &infra.Config{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
