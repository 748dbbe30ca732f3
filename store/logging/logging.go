// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"profiledir/cas"
	"profiledir/store"
)

var _ cas.Store = &Store{}

type Store struct {
	s cas.Store
}

func New(s cas.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Get(ctx context.Context, ref cas.Ref) (cas.Entry, error) {
	e, err := s.s.Get(ctx, ref)
	if err != nil {
		log.Printf("ERROR Get %s: %s", ref, err)
	} else {
		log.Printf("Get %s", ref)
	}
	return e, err
}

func (s *Store) GetMulti(ctx context.Context, refs []cas.Ref) (cas.GetMultiResult, error) {
	result, err := s.s.GetMulti(ctx, refs)
	if err != nil {
		log.Printf("ERROR GetMulti (%d refs): %s", len(refs), err)
	} else {
		log.Printf("GetMulti (%d refs)", len(refs))
	}
	return result, err
}

func (s *Store) Put(ctx context.Context, b cas.Blob, author cas.Identity) (cas.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b, author)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, author=%s, added=%v", ref, author, added)
	}
	return ref, added, err
}

func (s *Store) Link(ctx context.Context, source, target cas.Ref, tag cas.Tag) error {
	err := s.s.Link(ctx, source, target, tag)
	if err != nil {
		log.Printf("ERROR in Link %s -[%s]-> %s: %s", source, tag, target, err)
	} else {
		log.Printf("Link %s -[%s]-> %s", source, tag, target)
	}
	return err
}

func (s *Store) LinksFrom(ctx context.Context, source cas.Ref, tag *cas.Tag) ([]cas.Link, error) {
	links, err := s.s.LinksFrom(ctx, source, tag)
	if err != nil {
		log.Printf("ERROR LinksFrom %s: %s", source, err)
	} else {
		log.Printf("LinksFrom %s: %d links", source, len(links))
	}
	return links, err
}

func (s *Store) LinksFromMulti(ctx context.Context, sources []cas.Ref, tag *cas.Tag) ([][]cas.Link, error) {
	links, err := s.s.LinksFromMulti(ctx, sources, tag)
	if err != nil {
		log.Printf("ERROR LinksFromMulti (%d sources): %s", len(sources), err)
	} else {
		log.Printf("LinksFromMulti (%d sources)", len(sources))
	}
	return links, err
}

func (s *Store) ListRefs(ctx context.Context, start cas.Ref, f func(cas.Ref) error) error {
	log.Printf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(ref cas.Ref) error {
		err := f(ref)
		if err != nil {
			log.Printf("  ERROR in ListRefs: %s: %s", ref, err)
		} else {
			log.Printf("  ListRefs: %s", ref)
		}
		return err
	})
}

func (s *Store) ListLinks(ctx context.Context, f func(cas.Link) error) error {
	log.Print("ListLinks")
	return s.s.ListLinks(ctx, f)
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
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
		return New(nestedStore), nil
	})
}
