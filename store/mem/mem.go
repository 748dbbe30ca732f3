// Package mem implements an in-memory addressable store.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"profiledir/cas"
	"profiledir/store"
)

var _ cas.Store = &Store{}

// Store is a memory-based implementation of an addressable store.
type Store struct {
	mu      sync.Mutex
	entries map[cas.Ref]cas.Entry
	links   map[cas.Ref][]cas.Link // by source, in creation order
	linkSet map[linkKey]struct{}
}

type linkKey struct {
	source, target cas.Ref
	tag            cas.Tag
}

// New produces a new Store.
func New() *Store {
	return &Store{
		entries: make(map[cas.Ref]cas.Entry),
		links:   make(map[cas.Ref][]cas.Link),
		linkSet: make(map[linkKey]struct{}),
	}
}

// Get gets the entry with hash `ref`.
func (s *Store) Get(_ context.Context, ref cas.Ref) (cas.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ref)
}

// Caller must obtain a lock.
func (s *Store) get(ref cas.Ref) (cas.Entry, error) {
	if e, ok := s.entries[ref]; ok {
		return e, nil
	}
	return cas.Entry{}, cas.ErrNotFound
}

// GetMulti gets multiple entries in one call.
func (s *Store) GetMulti(_ context.Context, refs []cas.Ref) (cas.GetMultiResult, error) {
	result := make(cas.GetMultiResult)
	for _, ref := range refs {
		ref := ref
		result[ref] = func(_ context.Context) (cas.Entry, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			return s.get(ref)
		}
	}
	return result, nil
}

// Put adds a blob to the store if it wasn't already present.
// The author and write time are recorded only on first add.
func (s *Store) Put(_ context.Context, b cas.Blob, author cas.Identity) (cas.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, added := s.put(b, author)
	return ref, added, nil
}

// Caller must obtain a lock.
func (s *Store) put(b cas.Blob, author cas.Identity) (cas.Ref, bool) {
	var added bool

	r := b.Ref()
	if _, ok := s.entries[r]; !ok {
		s.entries[r] = cas.Entry{Blob: b, Author: author, At: time.Now().UTC()}
		added = true
	}

	return r, added
}

// Link creates the edge (source, target, tag) if it does not already exist.
func (s *Store) Link(_ context.Context, source, target cas.Ref, tag cas.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := linkKey{source: source, target: target, tag: tag}
	if _, ok := s.linkSet[k]; ok {
		return nil
	}
	s.linkSet[k] = struct{}{}
	s.links[source] = append(s.links[source], cas.Link{
		Source: source,
		Target: target,
		Tag:    tag,
		At:     time.Now().UTC(),
	})
	return nil
}

// LinksFrom returns the outbound links of `source` in creation order,
// optionally filtered by tag.
func (s *Store) LinksFrom(_ context.Context, source cas.Ref, tag *cas.Tag) ([]cas.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linksFrom(source, tag), nil
}

// Caller must obtain a lock.
func (s *Store) linksFrom(source cas.Ref, tag *cas.Tag) []cas.Link {
	var result []cas.Link
	for _, l := range s.links[source] {
		if tag != nil && l.Tag != *tag {
			continue
		}
		result = append(result, l)
	}
	return result
}

// LinksFromMulti resolves the outbound links of several sources in one call.
func (s *Store) LinksFromMulti(_ context.Context, sources []cas.Ref, tag *cas.Tag) ([][]cas.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([][]cas.Link, 0, len(sources))
	for _, source := range sources {
		result = append(result, s.linksFrom(source, tag))
	}
	return result, nil
}

// ListRefs produces all entry refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start cas.Ref, f func(cas.Ref) error) error {
	s.mu.Lock()
	refs := make([]cas.Ref, 0, len(s.entries))
	for ref := range s.entries {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// ListLinks produces all links in the store,
// ordered by source ref and then by creation.
func (s *Store) ListLinks(ctx context.Context, f func(cas.Link) error) error {
	s.mu.Lock()
	sources := make([]cas.Ref, 0, len(s.links))
	for source := range s.links {
		sources = append(sources, source)
	}
	s.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool { return sources[i].Less(sources[j]) })

	for _, source := range sources {
		s.mu.Lock()
		ls := make([]cas.Link, len(s.links[source]))
		copy(ls, s.links[source])
		s.mu.Unlock()
		for _, l := range ls {
			err := f(l)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (cas.Store, error) {
		return New(), nil
	})
}
