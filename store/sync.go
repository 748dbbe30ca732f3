package store

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"profiledir/cas"
)

// Sync synchronizes two or more stores.
// It enumerates the entries and links of all input stores.
// When an entry or link is found to be in some but not all stores,
// it is added to the stores where it's missing.
//
// Entries are copied before links,
// so a link never arrives ahead of the entry it targets
// within a single Sync pass.
//
// Receiving stores stamp their own write times,
// so timestamps are not preserved across stores.
// That can perturb latest-link resolution for readers
// configured with ResolveLatest; first-link resolution is unaffected
// by a pass that only appends missing data.
func Sync(ctx context.Context, stores []cas.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type linkKey struct {
		source, target cas.Ref
		tag            cas.Tag
	}

	var (
		refSets  = make([]map[cas.Ref]struct{}, len(stores))
		linkSets = make([]map[linkKey]struct{}, len(stores))
	)

	eg, gctx := errgroup.WithContext(ctx)
	for i, s := range stores {
		i, s := i, s
		refSets[i] = make(map[cas.Ref]struct{})
		linkSets[i] = make(map[linkKey]struct{})
		eg.Go(func() error {
			err := s.ListRefs(gctx, cas.Ref{}, func(ref cas.Ref) error {
				refSets[i][ref] = struct{}{}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "listing refs of store %d", i)
			}
			err = s.ListLinks(gctx, func(l cas.Link) error {
				linkSets[i][linkKey{source: l.Source, target: l.Target, tag: l.Tag}] = struct{}{}
				return nil
			})
			return errors.Wrapf(err, "listing links of store %d", i)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// Union of refs, remembering one store that has each.
	havers := make(map[cas.Ref]int)
	for i, set := range refSets {
		for ref := range set {
			if _, ok := havers[ref]; !ok {
				havers[ref] = i
			}
		}
	}

	for ref, from := range havers {
		var needers []cas.Store
		for i, set := range refSets {
			if _, ok := set[ref]; !ok {
				needers = append(needers, stores[i])
			}
		}
		if len(needers) == 0 {
			continue
		}

		e, err := stores[from].Get(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "getting entry %s", ref)
		}
		for _, s := range needers {
			_, _, err = s.Put(ctx, e.Blob, e.Author)
			if err != nil {
				return errors.Wrapf(err, "storing entry %s", ref)
			}
		}
	}

	linkUnion := make(map[linkKey]struct{})
	for _, set := range linkSets {
		for k := range set {
			linkUnion[k] = struct{}{}
		}
	}

	for k := range linkUnion {
		for i, set := range linkSets {
			if _, ok := set[k]; ok {
				continue
			}
			err := stores[i].Link(ctx, k.source, k.target, k.tag)
			if err != nil {
				return errors.Wrapf(err, "storing link %s -> %s", k.source, k.target)
			}
		}
	}

	return nil
}
