// Package lru implements a store that acts as a least-recently-used cache for a nested store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"profiledir/cas"
	"profiledir/store"
)

var _ cas.Store = &Store{}

// Store implements a memory-based least-recently-used cache for an
// addressable store. It caches only entries, not links:
// links are append-only and cheap to re-list,
// and a stale link cache would hide newly published profiles.
// Writes pass through to the underlying store.
type Store struct {
	c *lru.Cache // Ref->Entry
	s cas.Store
}

// New produces a new Store backed by `s` and caching up to `size` entries.
func New(s cas.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the entry with hash `ref`.
func (s *Store) Get(ctx context.Context, ref cas.Ref) (cas.Entry, error) {
	if got, ok := s.c.Get(ref); ok {
		return got.(cas.Entry), nil
	}
	e, err := s.s.Get(ctx, ref)
	if err != nil {
		return cas.Entry{}, err
	}
	s.c.Add(ref, e)
	return e, nil
}

// GetMulti gets multiple entries in one call.
// Cached refs are answered locally;
// the rest delegate to the nested store and populate the cache on success.
func (s *Store) GetMulti(ctx context.Context, refs []cas.Ref) (cas.GetMultiResult, error) {
	var (
		result = make(cas.GetMultiResult)
		misses []cas.Ref
	)
	for _, ref := range refs {
		if got, ok := s.c.Get(ref); ok {
			e := got.(cas.Entry)
			result[ref] = func(_ context.Context) (cas.Entry, error) {
				return e, nil
			}
			continue
		}
		misses = append(misses, ref)
	}

	if len(misses) > 0 {
		nested, err := s.s.GetMulti(ctx, misses)
		if err != nil {
			return nil, errors.Wrap(err, "getting entries from nested store")
		}
		for ref, thunk := range nested {
			ref, thunk := ref, thunk
			result[ref] = func(ctx context.Context) (cas.Entry, error) {
				e, err := thunk(ctx)
				if err != nil {
					return cas.Entry{}, err
				}
				s.c.Add(ref, e)
				return e, nil
			}
		}
	}

	return result, nil
}

// Put adds a blob to the store if it wasn't already present.
// The entry is not cached here:
// the nested store stamps the write metadata,
// and caching a locally fabricated entry would misreport it.
func (s *Store) Put(ctx context.Context, b cas.Blob, author cas.Identity) (cas.Ref, bool, error) {
	return s.s.Put(ctx, b, author)
}

// Link delegates to the nested store.
func (s *Store) Link(ctx context.Context, source, target cas.Ref, tag cas.Tag) error {
	return s.s.Link(ctx, source, target, tag)
}

// LinksFrom delegates to the nested store.
func (s *Store) LinksFrom(ctx context.Context, source cas.Ref, tag *cas.Tag) ([]cas.Link, error) {
	return s.s.LinksFrom(ctx, source, tag)
}

// LinksFromMulti delegates to the nested store.
func (s *Store) LinksFromMulti(ctx context.Context, sources []cas.Ref, tag *cas.Tag) ([][]cas.Link, error) {
	return s.s.LinksFromMulti(ctx, sources, tag)
}

// ListRefs delegates to the nested store.
func (s *Store) ListRefs(ctx context.Context, start cas.Ref, f func(cas.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

// ListLinks delegates to the nested store.
func (s *Store) ListLinks(ctx context.Context, f func(cas.Link) error) error {
	return s.s.ListLinks(ctx, f)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
		size, ok := conf["size"].(int)
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, size)
	})
}
