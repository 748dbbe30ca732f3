package directory_test

import (
	"context"
	stderrs "errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"profiledir/bucket"
	"profiledir/cas"
	"profiledir/directory"
	"profiledir/index"
	"profiledir/store/mem"
)

var (
	alice = cas.Identity("alice-public-key")
	bob   = cas.Identity("bob-public-key")
	carol = cas.Identity("carol-public-key")
)

func TestPublishRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	want := directory.Profile{
		Nickname: "Alice",
		Fields:   map[string]string{"bio": "builder", "location": "earth"},
	}

	published, err := directory.New(s, alice).Publish(ctx, want)
	if err != nil {
		t.Fatal(err)
	}
	if !published.Identity.Equal(alice) {
		t.Errorf("publish returned identity %s, want %s", published.Identity, alice)
	}

	got, ok, err := directory.New(s, bob).GetByIdentity(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a profile for alice")
	}
	if !got.Identity.Equal(alice) {
		t.Errorf("got identity %s, want %s", got.Identity, alice)
	}
	if diff := cmp.Diff(want, got.Profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestGetByIdentityAbsent(t *testing.T) {
	ctx := context.Background()

	_, ok, err := directory.New(mem.New(), alice).GetByIdentity(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no profile for an identity that never published")
	}
}

func TestSearchBucketing(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	// "Alice" and "alison" share the bucket "ali"; "Bob" does not.
	if _, err := directory.New(s, alice).Publish(ctx, directory.Profile{Nickname: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := directory.New(s, bob).Publish(ctx, directory.Profile{Nickname: "alison"}); err != nil {
		t.Fatal(err)
	}
	if _, err := directory.New(s, carol).Publish(ctx, directory.Profile{Nickname: "Bob"}); err != nil {
		t.Fatal(err)
	}

	svc := directory.New(s, alice)

	got, err := svc.Search(ctx, "ALI")
	if err != nil {
		t.Fatal(err)
	}
	if names := nicknames(got); !cmp.Equal(names, []string{"Alice", "alison"}) {
		t.Errorf("search(ALI) = %v, want [Alice alison]", names)
	}

	// A longer prefix still resolves to the same single bucket.
	got, err = svc.Search(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("search(alice) returned %d profiles, want 2", len(got))
	}

	got, err = svc.Search(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if names := nicknames(got); !cmp.Equal(names, []string{"Bob"}) {
		t.Errorf("search(bob) = %v, want [Bob]", names)
	}

	// A bucket nobody has published into is empty, not an error.
	got, err = svc.Search(ctx, "zzz")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("search(zzz) returned %d profiles, want 0", len(got))
	}
}

func TestSearchPrefixTooShort(t *testing.T) {
	ctx := context.Background()
	svc := directory.New(mem.New(), alice)

	for _, prefix := range []string{"", "a", "ab"} {
		if _, err := svc.Search(ctx, prefix); !stderrs.Is(err, directory.ErrPrefixTooShort) {
			t.Errorf("search(%q): got error %v, want ErrPrefixTooShort", prefix, err)
		}
	}

	if _, err := svc.Search(ctx, "abc"); err != nil {
		t.Errorf("search(abc): %v", err)
	}
}

func TestGetManyByIdentity(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	if _, err := directory.New(s, alice).Publish(ctx, directory.Profile{Nickname: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := directory.New(s, carol).Publish(ctx, directory.Profile{Nickname: "Carol"}); err != nil {
		t.Fatal(err)
	}

	// bob never published and is silently dropped.
	got, err := directory.New(s, alice).GetManyByIdentity(ctx, []cas.Identity{alice, bob, carol})
	if err != nil {
		t.Fatal(err)
	}
	if names := nicknames(got); !cmp.Equal(names, []string{"Alice", "Carol"}) {
		t.Errorf("got %v, want [Alice Carol]", names)
	}
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	// Five profiles across three buckets.
	publishers := []struct {
		id       cas.Identity
		nickname string
	}{
		{cas.Identity("key-1"), "Alice"},
		{cas.Identity("key-2"), "alison"},
		{cas.Identity("key-3"), "Bob"},
		{cas.Identity("key-4"), "bobby"},
		{cas.Identity("key-5"), "Carol"},
	}
	for _, p := range publishers {
		if _, err := directory.New(s, p.id).Publish(ctx, directory.Profile{Nickname: p.nickname}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := directory.New(s, alice).ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if names := nicknames(got); !cmp.Equal(names, []string{"Alice", "Bob", "Carol", "alison", "bobby"}) {
		t.Errorf("got %v, want all five profiles", names)
	}
}

func TestListAllEmpty(t *testing.T) {
	ctx := context.Background()

	got, err := directory.New(mem.New(), alice).ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d profiles from an empty directory, want 0", len(got))
	}
}

// The concrete scenario: publish {nickname: "Alice", fields: {}} from
// identity A, expect bucket "ali", one search hit, and a short-prefix error.
func TestAliceScenario(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	svc := directory.New(s, alice)

	if _, err := svc.Publish(ctx, directory.Profile{Nickname: "Alice", Fields: map[string]string{}}); err != nil {
		t.Fatal(err)
	}

	key, err := bucket.Of("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if key != "ali" {
		t.Errorf("bucket key %q, want %q", key, "ali")
	}

	got, err := svc.Search(ctx, "ali")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("search(ali) returned %d profiles, want 1", len(got))
	}
	if got[0].Profile.Nickname != "Alice" {
		t.Errorf("got nickname %q, want %q", got[0].Profile.Nickname, "Alice")
	}
	if !got[0].Identity.Equal(alice) {
		t.Errorf("got identity %s, want %s", got[0].Identity, alice)
	}

	if _, err = svc.Search(ctx, "al"); !stderrs.Is(err, directory.ErrPrefixTooShort) {
		t.Errorf("search(al): got error %v, want ErrPrefixTooShort", err)
	}
}

func TestRepublishAccumulates(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	svc := directory.New(s, alice)

	first := directory.Profile{Nickname: "Alice", Fields: map[string]string{"v": "1"}}
	second := directory.Profile{Nickname: "Alice", Fields: map[string]string{"v": "2"}}

	if _, err := svc.Publish(ctx, first); err != nil {
		t.Fatal(err)
	}
	// Keep the two link timestamps apart.
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.Publish(ctx, second); err != nil {
		t.Fatal(err)
	}

	// Both entries are indexed under the bucket.
	got, err := svc.Search(ctx, "ali")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("search(ali) returned %d profiles after republish, want 2", len(got))
	}

	// The default read policy returns the first discovered link.
	ap, ok, err := svc.GetByIdentity(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || ap.Profile.Fields["v"] != "1" {
		t.Errorf("default resolve got v=%q, want 1", ap.Profile.Fields["v"])
	}

	// ResolveLatest returns the newest link instead.
	latest := directory.New(s, alice, directory.WithResolve(index.ResolveLatest))
	ap, ok, err = latest.GetByIdentity(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || ap.Profile.Fields["v"] != "2" {
		t.Errorf("latest resolve got v=%q, want 2", ap.Profile.Fields["v"])
	}
}

// Publishing a nickname shorter than the bucket width stores the entry
// and then fails, leaving it unindexed: reachable by neither identity
// nor search. The asymmetry with Search's up-front check is deliberate.
func TestShortNicknameUnindexed(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	svc := directory.New(s, alice)

	p := directory.Profile{Nickname: "Al"}
	_, err := svc.Publish(ctx, p)
	if !stderrs.Is(err, bucket.ErrShortNickname) {
		t.Fatalf("got error %v, want ErrShortNickname", err)
	}

	// The entry was written before bucketing failed.
	ref, err := cas.JSONRef(p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Get(ctx, ref); err != nil {
		t.Errorf("expected the orphaned entry to exist: %v", err)
	}

	// But no index link reaches it.
	_, ok, err := svc.GetByIdentity(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no profile reachable by identity")
	}
}

func nicknames(aps []directory.AnnotatedProfile) []string {
	result := make([]string, 0, len(aps))
	for _, ap := range aps {
		result = append(result, ap.Profile.Nickname)
	}
	sort.Strings(result)
	return result
}
