package cas_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"profiledir/cas"
	"profiledir/store/mem"
)

type testProfile struct {
	Nickname string            `json:"nickname"`
	Fields   map[string]string `json:"fields"`
}

func TestJSONRefMatchesPut(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	p := testProfile{
		Nickname: "Alice",
		Fields: map[string]string{
			"zebra": "stripes",
			"apple": "red",
		},
	}

	want, err := cas.JSONRef(p)
	if err != nil {
		t.Fatal(err)
	}

	got, added, err := cas.PutJSON(ctx, s, p, cas.Identity("alice-public-key"))
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("expected put to add")
	}
	if got != want {
		t.Errorf("JSONRef %s does not match stored ref %s", want, got)
	}
}

func TestJSONRefIgnoresMapOrder(t *testing.T) {
	// The address must be a pure function of the value,
	// independent of the order map entries were inserted in.
	a := testProfile{Nickname: "Bob", Fields: map[string]string{}}
	b := testProfile{Nickname: "Bob", Fields: map[string]string{}}
	for _, k := range []string{"one", "two", "three", "four"} {
		a.Fields[k] = k
	}
	for _, k := range []string{"four", "three", "two", "one"} {
		b.Fields[k] = k
	}

	ra, err := cas.JSONRef(a)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := cas.JSONRef(b)
	if err != nil {
		t.Fatal(err)
	}
	if ra != rb {
		t.Errorf("equal values got different refs %s and %s", ra, rb)
	}
}

func TestGetJSON(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	var (
		alice = cas.Identity("alice-public-key")
		p     = testProfile{Nickname: "Alice", Fields: map[string]string{"bio": "builder"}}
	)

	ref, _, err := cas.PutJSON(ctx, s, p, alice)
	if err != nil {
		t.Fatal(err)
	}

	var got testProfile
	e, err := cas.GetJSON(ctx, s, ref, &got)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	if !e.Author.Equal(alice) {
		t.Errorf("got author %s, want %s", e.Author, alice)
	}
}
