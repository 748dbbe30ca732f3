// Package bucket maps nicknames to directory nodes in the store.
//
// The directory is a fixed two-level hierarchy:
// a single root node named "all_profiles",
// with one lazily created child node "all_profiles.<prefix>"
// per lower-cased 3-character nickname prefix.
// Nodes are ordinary content-addressed values,
// so every node's ref is a pure function of its name
// and any component can compute it without shared state
// or a store round trip.
package bucket

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"profiledir/cas"
)

const (
	// Root is the name of the single root directory node.
	Root = "all_profiles"

	// Width is the bucket granularity:
	// the number of leading nickname characters that select a bucket.
	Width = 3
)

// ErrShortNickname is the error returned by Of
// for nicknames shorter than the bucket width.
// Such nicknames cannot be bucketed and are therefore unsearchable.
var ErrShortNickname = errors.New("nickname shorter than 3 characters")

// Key identifies a bucket: a lower-cased 3-character nickname prefix.
type Key string

// Of computes the bucket key for a nickname:
// its lower-cased first three characters.
// Characters, not bytes: a multibyte nickname buckets by its runes.
func Of(nickname string) (Key, error) {
	runes := []rune(strings.ToLower(nickname))
	if len(runes) < Width {
		return "", ErrShortNickname
	}
	return Key(string(runes[:Width])), nil
}

// node is the stored form of a directory node.
type node struct {
	Path string `json:"path"`
}

// RootRef computes the root node's ref without store access.
func RootRef() (cas.Ref, error) {
	return cas.JSONRef(node{Path: Root})
}

// NodeRef computes a bucket node's ref without store access.
// The node need not exist:
// search uses this to resolve a bucket that may never have been created,
// in which case the ref simply has no outbound links.
func NodeRef(key Key) (cas.Ref, error) {
	return cas.JSONRef(node{Path: Root + "." + string(key)})
}

// Ensure idempotently materializes the bucket node for `key`,
// creating the root node implicitly if needed
// and linking root -> bucket with the bucket's tag.
// Calling Ensure twice with the same key is a no-op the second time
// and returns the same ref:
// content addressing guarantees this without extra bookkeeping.
func Ensure(ctx context.Context, s cas.Store, key Key, author cas.Identity) (cas.Ref, error) {
	rootRef, _, err := cas.PutJSON(ctx, s, node{Path: Root}, author)
	if err != nil {
		return cas.Ref{}, errors.Wrap(err, "storing root node")
	}

	ref, _, err := cas.PutJSON(ctx, s, node{Path: Root + "." + string(key)}, author)
	if err != nil {
		return cas.Ref{}, errors.Wrapf(err, "storing bucket node %s", key)
	}

	err = s.Link(ctx, rootRef, ref, cas.BucketTag(string(key)))
	return ref, errors.Wrapf(err, "linking root to bucket %s", key)
}

// Children returns the set of child links below a node.
func Children(ctx context.Context, g cas.Getter, ref cas.Ref) ([]cas.Link, error) {
	links, err := g.LinksFrom(ctx, ref, nil)
	return links, errors.Wrapf(err, "getting children of %s", ref)
}
