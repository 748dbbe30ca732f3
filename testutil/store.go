// Package testutil supplies store-conformance checks
// shared by the tests of every Store implementation.
package testutil

import (
	"bytes"
	"context"
	stderrs "errors"
	"testing"

	"profiledir/cas"
)

// Entries permits testing a Store implementation's entry operations:
// put, content-addressed dedup, get, batched get, and ref listing.
func Entries(ctx context.Context, t *testing.T, s cas.Store) {
	var (
		alice = cas.Identity("alice-public-key")
		bob   = cas.Identity("bob-public-key")
		blob  = cas.Blob(`{"nickname":"Alice"}`)
	)

	ref, added, err := s.Put(ctx, blob, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("expected first put to add")
	}
	if ref != blob.Ref() {
		t.Errorf("got ref %s, want %s", ref, blob.Ref())
	}

	// A re-put of identical content is a no-op,
	// even from a different author.
	ref2, added, err := s.Put(ctx, blob, bob)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("expected second put not to add")
	}
	if ref2 != ref {
		t.Errorf("got ref %s on re-put, want %s", ref2, ref)
	}

	e, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e.Blob, blob) {
		t.Error("content mismatch")
	}
	if !e.Author.Equal(alice) {
		t.Errorf("got author %s, want %s", e.Author, alice)
	}
	if e.At.IsZero() {
		t.Error("entry has no write time")
	}

	missing := cas.Blob("never stored").Ref()
	_, err = s.Get(ctx, missing)
	if !stderrs.Is(err, cas.ErrNotFound) {
		t.Errorf("got error %v for missing ref, want ErrNotFound", err)
	}

	got, err := s.GetMulti(ctx, []cas.Ref{ref, missing})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d thunks, want 2", len(got))
	}
	e, err = got[ref](ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e.Blob, blob) {
		t.Error("content mismatch in GetMulti")
	}
	_, err = got[missing](ctx)
	if !stderrs.Is(err, cas.ErrNotFound) {
		t.Errorf("got error %v for missing ref in GetMulti, want ErrNotFound", err)
	}

	var listed []cas.Ref
	err = s.ListRefs(ctx, cas.Ref{}, func(r cas.Ref) error {
		listed = append(listed, r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for i, r := range listed {
		if r == ref {
			found = true
		}
		if i > 0 && !listed[i-1].Less(r) {
			t.Error("ListRefs out of order")
		}
	}
	if !found {
		t.Errorf("ListRefs did not produce %s", ref)
	}
}

// Links permits testing a Store implementation's link operations:
// tagged creation, idempotence, filtered and batched traversal,
// and link listing.
func Links(ctx context.Context, t *testing.T, s cas.Store) {
	var (
		carol = cas.Identity("carol-public-key")

		node    = cas.Blob(`{"path":"all_profiles.car"}`)
		profile = cas.Blob(`{"nickname":"Carol"}`)
	)

	nodeRef, _, err := s.Put(ctx, node, carol)
	if err != nil {
		t.Fatal(err)
	}
	profileRef, _, err := s.Put(ctx, profile, carol)
	if err != nil {
		t.Fatal(err)
	}

	if err = s.Link(ctx, nodeRef, profileRef, cas.BucketTag("car")); err != nil {
		t.Fatal(err)
	}
	if err = s.Link(ctx, carol.Ref(), profileRef, cas.ProfileTag()); err != nil {
		t.Fatal(err)
	}

	// Creating the same link again is a no-op, never an error.
	if err = s.Link(ctx, nodeRef, profileRef, cas.BucketTag("car")); err != nil {
		t.Fatal(err)
	}

	links, err := s.LinksFrom(ctx, nodeRef, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links from node, want 1", len(links))
	}
	if links[0].Target != profileRef {
		t.Errorf("got target %s, want %s", links[0].Target, profileRef)
	}
	if links[0].Tag != cas.BucketTag("car") {
		t.Errorf("got tag %s, want %s", links[0].Tag, cas.BucketTag("car"))
	}
	if links[0].At.IsZero() {
		t.Error("link has no creation time")
	}

	// Tag filtering.
	tag := cas.ProfileTag()
	links, err = s.LinksFrom(ctx, carol.Ref(), &tag)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d profile links, want 1", len(links))
	}
	other := cas.BucketTag("xyz")
	links, err = s.LinksFrom(ctx, carol.Ref(), &other)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("got %d links with foreign tag, want 0", len(links))
	}

	// An unknown source has no links and is not an error.
	links, err = s.LinksFrom(ctx, cas.Blob("nowhere").Ref(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("got %d links from unknown source, want 0", len(links))
	}

	linkSets, err := s.LinksFromMulti(ctx, []cas.Ref{nodeRef, carol.Ref(), cas.Blob("nowhere").Ref()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(linkSets) != 3 {
		t.Fatalf("got %d link sets, want 3", len(linkSets))
	}
	if len(linkSets[0]) != 1 || len(linkSets[1]) != 1 || len(linkSets[2]) != 0 {
		t.Errorf("got link set sizes %d/%d/%d, want 1/1/0", len(linkSets[0]), len(linkSets[1]), len(linkSets[2]))
	}

	var count int
	err = s.ListLinks(ctx, func(cas.Link) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("ListLinks produced %d links, want 2", count)
	}
}
