package resolver

import (
	"sync"

	"genstudio/internal/domain"
)

type scopeKey struct {
	stageType string
	projectID string
}

type scope struct {
	prompts map[string]*ResolvedTemplateRef
	models  map[string]domain.ModelConfig
}

// Cache holds resolved templates and model configs keyed by
// (stageType, projectID). Invalidate drops every entry. Lookups that started
// before an Invalidate never repopulate the cache.
type Cache struct {
	mu         sync.RWMutex
	scopes     map[scopeKey]*scope
	generation uint64
}

func NewCache() *Cache {
	return &Cache{scopes: make(map[scopeKey]*scope)}
}

// Invalidate clears the whole cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.scopes = make(map[scopeKey]*scope)
	c.generation++
	c.mu.Unlock()
}

// Generation identifies the current invalidation epoch.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Len returns the number of cached (stageType, projectID) scopes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scopes)
}

func (c *Cache) prompt(stageType, projectID, promptID string) (*ResolvedTemplateRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scopes[scopeKey{stageType, projectID}]
	if !ok {
		return nil, false
	}
	ref, ok := s.prompts[promptID]
	return ref, ok
}

func (c *Cache) model(stageType, projectID, key string) (domain.ModelConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scopes[scopeKey{stageType, projectID}]
	if !ok {
		return domain.ModelConfig{}, false
	}
	cfg, ok := s.models[key]
	return cfg, ok
}

func (c *Cache) putPrompt(gen uint64, stageType, projectID, promptID string, ref *ResolvedTemplateRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.scopeLocked(stageType, projectID).prompts[promptID] = ref
}

func (c *Cache) putModel(gen uint64, stageType, projectID, key string, cfg domain.ModelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.scopeLocked(stageType, projectID).models[key] = cfg
}

func (c *Cache) scopeLocked(stageType, projectID string) *scope {
	k := scopeKey{stageType, projectID}
	s, ok := c.scopes[k]
	if !ok {
		s = &scope{
			prompts: make(map[string]*ResolvedTemplateRef),
			models:  make(map[string]domain.ModelConfig),
		}
		c.scopes[k] = s
	}
	return s
}
