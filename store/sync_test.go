package store_test

import (
	"context"
	"testing"

	"profiledir/cas"
	"profiledir/directory"
	"profiledir/store"
	"profiledir/store/mem"
)

func TestSync(t *testing.T) {
	ctx := context.Background()

	var (
		a     = mem.New()
		b     = mem.New()
		alice = cas.Identity("alice-public-key")
	)

	svc := directory.New(a, alice)
	_, err := svc.Publish(ctx, directory.Profile{Nickname: "Alice", Fields: map[string]string{"bio": "builder"}})
	if err != nil {
		t.Fatal(err)
	}

	if err = store.Sync(ctx, []cas.Store{a, b}); err != nil {
		t.Fatal(err)
	}

	// The replica must now answer searches and lookups on its own.
	got, err := directory.New(b, alice).Search(ctx, "ali")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d profiles from synced store, want 1", len(got))
	}
	if got[0].Profile.Nickname != "Alice" {
		t.Errorf("got nickname %q, want %q", got[0].Profile.Nickname, "Alice")
	}
	if !got[0].Identity.Equal(alice) {
		t.Errorf("got identity %s, want %s", got[0].Identity, alice)
	}

	// Syncing again changes nothing.
	if err = store.Sync(ctx, []cas.Store{a, b}); err != nil {
		t.Fatal(err)
	}

	var countA, countB int
	if err = a.ListRefs(ctx, cas.Ref{}, func(cas.Ref) error { countA++; return nil }); err != nil {
		t.Fatal(err)
	}
	if err = b.ListRefs(ctx, cas.Ref{}, func(cas.Ref) error { countB++; return nil }); err != nil {
		t.Fatal(err)
	}
	if countA != countB {
		t.Errorf("stores differ after sync: %d vs %d entries", countA, countB)
	}
}
