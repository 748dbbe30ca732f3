// Package index maintains the two link families that make a published
// profile discoverable: bucket -> profile and identity -> profile.
package index

import (
	"context"

	"github.com/pkg/errors"

	"profiledir/bucket"
	"profiledir/cas"
)

// Resolve selects which profile link wins
// when an identity has published more than once.
type Resolve int

const (
	// ResolveFirst returns the first discovered link.
	// This matches the original directory behavior
	// and is the default.
	ResolveFirst Resolve = iota

	// ResolveLatest returns the newest link by its timestamp.
	ResolveLatest
)

// Profile creates the two index links for a published profile:
// bucketRef -> profileRef tagged with the literal prefix,
// and identity -> profileRef tagged with the fixed profile tag.
//
// The two writes are issued independently;
// there is no cross-link transaction.
// A failure between them leaves the profile reachable from only one
// index, which the caller must treat as "maybe partially applied."
func Profile(ctx context.Context, s cas.Store, bucketRef cas.Ref, key bucket.Key, id cas.Identity, profileRef cas.Ref) error {
	err := s.Link(ctx, bucketRef, profileRef, cas.BucketTag(string(key)))
	if err != nil {
		return errors.Wrap(err, "linking bucket to profile")
	}

	err = s.Link(ctx, id.Ref(), profileRef, cas.ProfileTag())
	return errors.Wrap(err, "linking identity to profile")
}

// ProfilesUnder resolves all outbound links of a directory node,
// whatever their tag, to candidate profile refs.
func ProfilesUnder(ctx context.Context, g cas.Getter, node cas.Ref) ([]cas.Ref, error) {
	links, err := g.LinksFrom(ctx, node, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "getting links of %s", node)
	}

	refs := make([]cas.Ref, 0, len(links))
	for _, l := range links {
		refs = append(refs, l.Target)
	}
	return refs, nil
}

// ForIdentity resolves the profile-tagged links of an identity's address
// and returns the one selected by `r`,
// or false if the identity has never published.
func ForIdentity(ctx context.Context, g cas.Getter, id cas.Identity, r Resolve) (cas.Ref, bool, error) {
	tag := cas.ProfileTag()
	links, err := g.LinksFrom(ctx, id.Ref(), &tag)
	if err != nil {
		return cas.Ref{}, false, errors.Wrapf(err, "getting profile links of %s", id)
	}

	l, ok := pick(links, r)
	if !ok {
		return cas.Ref{}, false, nil
	}
	return l.Target, true, nil
}

// ForIdentities is the batched form of ForIdentity:
// one link query for all requested identities.
// Identities that have never published contribute nothing to the result.
func ForIdentities(ctx context.Context, g cas.Getter, ids []cas.Identity, r Resolve) ([]cas.Ref, error) {
	sources := make([]cas.Ref, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, id.Ref())
	}

	tag := cas.ProfileTag()
	linkSets, err := g.LinksFromMulti(ctx, sources, &tag)
	if err != nil {
		return nil, errors.Wrap(err, "getting profile links")
	}

	var refs []cas.Ref
	for _, links := range linkSets {
		if l, ok := pick(links, r); ok {
			refs = append(refs, l.Target)
		}
	}
	return refs, nil
}

func pick(links []cas.Link, r Resolve) (cas.Link, bool) {
	if len(links) == 0 {
		return cas.Link{}, false
	}
	if r == ResolveFirst {
		return links[0], true
	}

	best := links[0]
	for _, l := range links[1:] {
		if l.At.After(best.At) {
			best = l
		}
	}
	return best, true
}
