// Package memory is an in-process document store and reference table used
// by tests and the memory store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
)

type titleKey struct {
	kind  legislation.Kind
	title string
}

// Store keeps deep copies of everything it is given. The hook fields let
// tests inject failures; each is consulted before the corresponding write.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*legislation.Record
	byTitle    map[titleKey]string
	children   map[string]*legislation.ChildRecord
	references map[string]map[string]legislation.Reference
	now        func() time.Time

	SaveHook           func(rec *legislation.Record) error
	CreateChildrenHook func(children []*legislation.ChildRecord) error
	DeleteChildrenHook func(ids []string) error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records:    make(map[string]*legislation.Record),
		byTitle:    make(map[titleKey]string),
		children:   make(map[string]*legislation.ChildRecord),
		references: make(map[string]map[string]legislation.Reference),
		now:        time.Now,
	}
}

func (s *Store) Find(_ context.Context, kind legislation.Kind, title string) (*legislation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTitle[titleKey{kind, title}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *Store) Save(_ context.Context, rec *legislation.Record) error {
	if s.SaveHook != nil {
		if err := s.SaveHook(rec); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := titleKey{rec.Kind, rec.Title}
	if owner, ok := s.byTitle[key]; ok && owner != rec.ID {
		return fmt.Errorf("%w: %s %q", store.ErrDuplicateTitle, rec.Kind, rec.Title)
	}
	now := s.now().UTC()
	if prev, ok := s.records[rec.ID]; ok {
		delete(s.byTitle, titleKey{prev.Kind, prev.Title})
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec.Clone()
	s.byTitle[key] = rec.ID
	return nil
}

func (s *Store) CreateChildren(_ context.Context, children []*legislation.ChildRecord) error {
	if s.CreateChildrenHook != nil {
		if err := s.CreateChildrenHook(children); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range children {
		if _, ok := s.children[c.ID]; ok {
			return fmt.Errorf("child %s already exists", c.ID)
		}
	}
	for _, c := range children {
		s.children[c.ID] = c.Clone()
	}
	return nil
}

// LoadChildren returns the children with the given ids in the order asked.
// Unknown ids are skipped.
func (s *Store) LoadChildren(_ context.Context, ids []string) ([]*legislation.ChildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*legislation.ChildRecord, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.children[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *Store) DeleteChildren(_ context.Context, ids []string) error {
	if s.DeleteChildrenHook != nil {
		if err := s.DeleteChildrenHook(ids); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.children, id)
	}
	return nil
}

func (s *Store) FindRecordsByTitles(_ context.Context, kind legislation.Kind, titles []string) (map[string]*legislation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*legislation.Record, len(titles))
	for _, t := range titles {
		if id, ok := s.byTitle[titleKey{kind, t}]; ok {
			out[t] = s.records[id].Clone()
		}
	}
	return out, nil
}

// AddReference registers a reference entry.
func (s *Store) AddReference(table, id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.references[table]
	if !ok {
		t = make(map[string]legislation.Reference)
		s.references[table] = t
	}
	t[store.NormalizeName(name)] = legislation.Reference{Table: table, ID: id, Name: name}
}

func (s *Store) FindReference(_ context.Context, table, name string) (*legislation.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.references[table][store.NormalizeName(name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ref, nil
}

// Records returns copies of every record of kind, ordered by title.
func (s *Store) Records(kind legislation.Kind) []*legislation.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*legislation.Record
	for _, r := range s.records {
		if r.Kind == kind {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// ChildCount returns the number of stored child records.
func (s *Store) ChildCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.children)
}
