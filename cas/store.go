package cas

import (
	"context"
	"errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets an entry by its ref.
	// It returns ErrNotFound if no entry with that ref is present.
	Get(context.Context, Ref) (Entry, error)

	// GetMulti gets multiple entries in one call.
	// Refs absent from the store yield a thunk returning ErrNotFound,
	// not an error from GetMulti itself.
	GetMulti(context.Context, []Ref) (GetMultiResult, error)

	// LinksFrom returns the outbound links of the given source ref,
	// in the order they were created.
	// If tag is non-nil, only links carrying that tag are returned.
	// An unknown source yields an empty list, not an error.
	LinksFrom(ctx context.Context, source Ref, tag *Tag) ([]Link, error)

	// LinksFromMulti resolves the outbound links of several sources in one
	// call. The result is parallel to sources.
	LinksFromMulti(ctx context.Context, sources []Ref, tag *Tag) ([][]Link, error)

	// ListRefs calls a function for each entry ref in the store in
	// lexicographic order, beginning with the first ref _after_ the
	// specified one.
	//
	// The calls reflect at least the set of refs known at the moment
	// ListRefs was called. It is unspecified whether later changes,
	// that happen concurrently with ListRefs, are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(Ref) error) error

	// ListLinks calls a function for each link in the store,
	// ordered by source ref and then by creation.
	// The same caveats as ListRefs apply.
	ListLinks(context.Context, func(Link) error) error
}

// Store is a content-addressable, link-based store.
// It stores byte sequences - "blobs" - of arbitrary length,
// each retrievable by its ref (the sha2-256 hash of its content),
// and directed, tagged links between refs.
// Every mutation is a pure append;
// nothing in this interface updates or deletes.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present,
	// recording author and the write time as the entry's metadata.
	// It returns b's ref and a boolean that is true iff the entry had to
	// be added. A re-put of existing content is a no-op:
	// the recorded author and time are not changed.
	Put(ctx context.Context, b Blob, author Identity) (ref Ref, added bool, err error)

	// Link creates the directed edge (source, target, tag).
	// Creating a link that already exists is a no-op, never an error.
	Link(ctx context.Context, source, target Ref, tag Tag) error
}

// GetMultiResult is the result of a call to GetMulti:
// a thunk per requested ref,
// which when called produces that ref's entry or ErrNotFound.
type GetMultiResult map[Ref]func(context.Context) (Entry, error)

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent ref.
var ErrNotFound = errors.New("not found")
