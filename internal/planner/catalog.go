package planner

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

//go:embed graphs/*.yaml
var builtinGraphs embed.FS

const graphPattern = "**/*.{yaml,yml}"

// Catalog holds the product graphs: the embedded built-ins overlaid with any
// graphs found under a directory.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	logger zerolog.Logger
}

// NewCatalog loads the built-in graphs.
func NewCatalog(logger zerolog.Logger) (*Catalog, error) {
	c := &Catalog{logger: logger}
	graphs, err := loadFS(builtinGraphs, "graphs/*.yaml", nil, logger)
	if err != nil {
		return nil, err
	}
	c.graphs = graphs
	return c, nil
}

// Graph returns the graph for product.
func (c *Catalog) Graph(product string) (*Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.graphs[strings.ToLower(strings.TrimSpace(product))]
	return g, ok
}

// Products lists known products in sorted order.
func (c *Catalog) Products() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.graphs))
	for p := range c.graphs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Put registers or replaces a graph.
func (c *Catalog) Put(g *Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs[g.Product] = g
	return nil
}

// LoadDir overlays every graph found under dir onto the built-ins. A file
// that fails to parse keeps the previously loaded version of its graph.
func (c *Catalog) LoadDir(dir string) error {
	builtin, err := loadFS(builtinGraphs, "graphs/*.yaml", nil, c.logger)
	if err != nil {
		return err
	}
	c.mu.RLock()
	previous := make(map[string]*Graph, len(c.graphs))
	for _, g := range c.graphs {
		if g.source != "" && !strings.HasPrefix(g.source, "builtin:") {
			previous[g.source] = g
		}
	}
	c.mu.RUnlock()

	custom, err := loadFS(os.DirFS(dir), graphPattern, previous, c.logger)
	if err != nil {
		return err
	}
	for product, g := range custom {
		builtin[product] = g
	}
	c.mu.Lock()
	c.graphs = builtin
	c.mu.Unlock()
	c.logger.Info().Str("dir", dir).Int("graphs", len(custom)).Msg("planner: graphs loaded")
	return nil
}

// Watch reloads dir whenever a graph file changes, until ctx is done.
func (c *Catalog) Watch(ctx context.Context, dir string) error {
	if err := c.LoadDir(dir); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("planner: watcher: %w", err)
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("planner: watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = w.Add(ev.Name)
					}
				}
				if isGraphFile(ev.Name) {
					debounce = time.After(250 * time.Millisecond)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.logger.Warn().Err(err).Msg("planner: watch error")
			case <-debounce:
				debounce = nil
				if err := c.LoadDir(dir); err != nil {
					c.logger.Warn().Err(err).Str("dir", dir).Msg("planner: reload failed")
				}
			}
		}
	}()
	return nil
}

func isGraphFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func loadFS(fsys fs.FS, pattern string, previous map[string]*Graph, logger zerolog.Logger) (map[string]*Graph, error) {
	paths, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("planner: glob %s: %w", pattern, err)
	}
	sort.Strings(paths)
	_, builtin := fsys.(embed.FS)
	out := make(map[string]*Graph, len(paths))
	for _, p := range paths {
		source := p
		if builtin {
			source = "builtin:" + p
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("planner: read %s: %w", p, err)
		}
		g, err := ParseGraph(data)
		if err != nil {
			if builtin {
				return nil, fmt.Errorf("planner: %s: %w", p, err)
			}
			logger.Warn().Err(err).Str("file", p).Msg("planner: invalid graph skipped")
			if prev, ok := previous[source]; ok {
				out[prev.Product] = prev
			}
			continue
		}
		g.source = source
		out[g.Product] = g
	}
	return out, nil
}
