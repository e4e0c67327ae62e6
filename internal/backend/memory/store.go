package memory

import (
	"fmt"
	"sync"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/metadata"
)

// Store holds ordered collections of objects keyed by entity type and
// identifier. Collections keep insertion order; replacing an object keeps
// its position.
type Store struct {
	mu          sync.RWMutex
	classes     *metadata.Registry
	collections map[string]*collection
}

type collection struct {
	keys    []string
	objects map[string]any
}

// NewStore creates an empty store resolving object types through classes.
func NewStore(classes *metadata.Registry) *Store {
	return &Store{classes: classes, collections: make(map[string]*collection)}
}

// Classes returns the metadata registry of the store.
func (s *Store) Classes() *metadata.Registry { return s.classes }

// AddCollection creates (or extends) the collection of entityType with
// objects. Every object must be of that type.
func (s *Store) AddCollection(entityType string, objects ...any) error {
	class, ok := s.classes.Class(entityType)
	if !ok {
		return agenterr.InvalidArgument("no class registered for type %q", entityType)
	}
	for _, obj := range objects {
		if !class.Owns(obj) {
			return agenterr.InvalidArgument("all objects in collection must be of type %q, got %T", class.Name(), obj)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(class.Name())
	for _, obj := range objects {
		if err := coll.put(class, obj); err != nil {
			return err
		}
	}
	return nil
}

// HasCollection reports whether a collection exists for entityType.
func (s *Store) HasCollection(entityType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[s.classes.Canonical(entityType)]
	return ok
}

// Objects returns a snapshot of the collection of entityType in order.
func (s *Store) Objects(entityType string) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[s.classes.Canonical(entityType)]
	if !ok {
		return nil, agenterr.InvalidArgument("no collection available for type %q", entityType)
	}
	out := make([]any, len(coll.keys))
	for i, k := range coll.keys {
		out[i] = coll.objects[k]
	}
	return out, nil
}

// Find returns the object of entityType with identifier.
func (s *Store) Find(entityType string, identifier any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[s.classes.Canonical(entityType)]
	if !ok {
		return nil, false
	}
	obj, ok := coll.objects[key(identifier)]
	return obj, ok
}

// Put inserts or replaces obj, creating its collection when needed.
func (s *Store) Put(obj any) error {
	class, err := s.classOf(obj)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection(class.Name()).put(class, obj)
}

// Delete removes obj. Deleting an absent object is a no-op.
func (s *Store) Delete(obj any) error {
	class, err := s.classOf(obj)
	if err != nil {
		return err
	}
	id, err := class.Identifier(Name, obj)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[class.Name()]
	if !ok {
		return nil
	}
	k := key(id)
	if _, ok := coll.objects[k]; !ok {
		return nil
	}
	delete(coll.objects, k)
	for i, existing := range coll.keys {
		if existing == k {
			coll.keys = append(coll.keys[:i], coll.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) classOf(obj any) (*metadata.Class, error) {
	class, ok := s.classes.ClassOf(obj)
	if !ok {
		return nil, agenterr.InvalidArgument("no class registered for object of type %T", obj)
	}
	if !class.Owns(obj) {
		return nil, agenterr.InvalidArgument("object of type %T must be passed by pointer", obj)
	}
	return class, nil
}

// collection returns the collection of entityType, creating it. Callers hold
// the write lock.
func (s *Store) collection(entityType string) *collection {
	coll, ok := s.collections[entityType]
	if !ok {
		coll = &collection{objects: make(map[string]any)}
		s.collections[entityType] = coll
	}
	return coll
}

func (c *collection) put(class *metadata.Class, obj any) error {
	id, err := class.Identifier(Name, obj)
	if err != nil {
		return err
	}
	if id == nil {
		return agenterr.InvalidArgument("object of type %q has no identifier", class.Name())
	}
	k := key(id)
	if _, exists := c.objects[k]; !exists {
		c.keys = append(c.keys, k)
	}
	c.objects[k] = obj
	return nil
}

// key normalizes identifiers so 7, int64(7) and "7" address the same object.
func key(identifier any) string {
	return fmt.Sprint(identifier)
}
