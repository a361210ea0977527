package docstore

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"genstudio/internal/domain"
)

// MemoryStore keeps BSON-encoded documents in process. Encoding through BSON
// gives it the same field naming and merge semantics as MongoStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]bson.M)}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string, out any) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	s.mu.RLock()
	doc, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return decode(doc, out)
}

func (s *MemoryStore) Set(_ context.Context, collection, id string, doc any, merge bool) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	m, err := toM(doc)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]bson.M)
		s.docs[collection] = coll
	}
	// Stored maps are never mutated, so readers may decode them after
	// releasing the lock. A merge stores a new map.
	if existing, ok := coll[id]; ok && merge {
		merged := maps.Clone(existing)
		maps.Copy(merged, m)
		coll[id] = merged
		return nil
	}
	m["_id"] = id
	coll[id] = m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	delete(s.docs[collection], id)
	return nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, stageType, promptID string) ([]domain.PromptVersion, error) {
	var versions []domain.PromptVersion
	err := s.FindAll(ctx, CollectionVersions, map[string]any{"stageType": stageType, "promptId": promptID}, &versions)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

func (s *MemoryStore) FindAll(_ context.Context, collection string, match map[string]any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find %s: out must be a pointer to a slice", collection)
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs[collection]))
	for id, doc := range s.docs[collection] {
		if matches(doc, match) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	docs := make([]bson.M, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, s.docs[collection][id])
	}
	s.mu.RUnlock()

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	for _, doc := range docs {
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}

// Len returns the number of documents in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

func matches(doc bson.M, match map[string]any) bool {
	for k, want := range match {
		got, ok := doc[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func toM(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
