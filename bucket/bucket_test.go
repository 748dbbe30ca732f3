package bucket_test

import (
	"context"
	stderrs "errors"
	"testing"

	"profiledir/bucket"
	"profiledir/cas"
	"profiledir/store/mem"
)

func TestOf(t *testing.T) {
	cases := []struct {
		nickname string
		want     bucket.Key
		wantErr  bool
	}{
		{nickname: "Alice", want: "ali"},
		{nickname: "ALICE", want: "ali"},
		{nickname: "alice", want: "ali"},
		{nickname: "Bob", want: "bob"},
		{nickname: "Éloise", want: "élo"},
		{nickname: "ab", wantErr: true},
		{nickname: "a", wantErr: true},
		{nickname: "", wantErr: true},
	}

	for _, c := range cases {
		got, err := bucket.Of(c.nickname)
		if c.wantErr {
			if !stderrs.Is(err, bucket.ErrShortNickname) {
				t.Errorf("Of(%q): got error %v, want ErrShortNickname", c.nickname, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Of(%q): %v", c.nickname, err)
			continue
		}
		if got != c.want {
			t.Errorf("Of(%q) = %q, want %q", c.nickname, got, c.want)
		}
	}
}

func TestEnsureIdempotent(t *testing.T) {
	ctx := context.Background()

	var (
		s     = mem.New()
		alice = cas.Identity("alice-public-key")
	)

	ref1, err := bucket.Ensure(ctx, s, "ali", alice)
	if err != nil {
		t.Fatal(err)
	}
	ref2, err := bucket.Ensure(ctx, s, "ali", alice)
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != ref2 {
		t.Errorf("Ensure returned %s then %s, want the same ref", ref1, ref2)
	}

	// The pure address computation agrees with the materialized node.
	want, err := bucket.NodeRef("ali")
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != want {
		t.Errorf("Ensure returned %s, NodeRef computes %s", ref1, want)
	}

	// No second node, no second root link.
	rootRef, err := bucket.RootRef()
	if err != nil {
		t.Fatal(err)
	}
	children, err := bucket.Children(ctx, s, rootRef)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 {
		t.Fatalf("root has %d children, want 1", len(children))
	}
	if children[0].Target != ref1 {
		t.Errorf("root child targets %s, want %s", children[0].Target, ref1)
	}
	if children[0].Tag != cas.BucketTag("ali") {
		t.Errorf("root child tagged %s, want %s", children[0].Tag, cas.BucketTag("ali"))
	}
}

func TestEnsureDistinctBuckets(t *testing.T) {
	ctx := context.Background()

	var (
		s     = mem.New()
		alice = cas.Identity("alice-public-key")
	)

	for _, key := range []bucket.Key{"ali", "bob", "car"} {
		if _, err := bucket.Ensure(ctx, s, key, alice); err != nil {
			t.Fatal(err)
		}
	}

	rootRef, err := bucket.RootRef()
	if err != nil {
		t.Fatal(err)
	}
	children, err := bucket.Children(ctx, s, rootRef)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 3 {
		t.Fatalf("root has %d children, want 3", len(children))
	}
}

func TestNodeRefNeedsNoStore(t *testing.T) {
	// Search resolves buckets that may never have been created;
	// the ref of an absent bucket must still be computable.
	ref, err := bucket.NodeRef("zzz")
	if err != nil {
		t.Fatal(err)
	}
	if ref.IsZero() {
		t.Error("got zero ref")
	}

	links, err := mem.New().LinksFrom(context.Background(), ref, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Errorf("absent bucket has %d links, want 0", len(links))
	}
}
