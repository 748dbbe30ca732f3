package lru

import (
	"context"
	"testing"

	"profiledir/cas"
	"profiledir/store/mem"
	"profiledir/testutil"
)

func TestEntries(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Entries(context.Background(), t, s)
}

func TestLinks(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Links(context.Background(), t, s)
}

func TestCachePopulation(t *testing.T) {
	ctx := context.Background()

	s, err := New(mem.New(), 10)
	if err != nil {
		t.Fatal(err)
	}

	blob := cas.Blob(`{"nickname":"Dora"}`)
	ref, _, err := s.Put(ctx, blob, cas.Identity("dora-public-key"))
	if err != nil {
		t.Fatal(err)
	}

	// Writes do not populate the cache; the first read does.
	if _, ok := s.c.Get(ref); ok {
		t.Error("expected put not to cache")
	}
	if _, err = s.Get(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.c.Get(ref); !ok {
		t.Error("expected get to cache")
	}
}
