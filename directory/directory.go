// Package directory implements the public profile-directory operations:
// publish, lookup by identity, prefix search, and full enumeration.
//
// The service is stateless. Each operation is one self-contained
// traversal over the store; concurrency comes entirely from independent
// callers sharing a store, and every mutation is a pure append,
// so no coordination is needed here. Reads are best-effort views of
// currently visible links, not linearizable snapshots.
package directory

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"profiledir/bucket"
	"profiledir/cas"
	"profiledir/index"
)

// Profile is a participant's self-describing profile.
// Profiles are immutable once stored;
// each publish creates a new content-addressed entry.
type Profile struct {
	Nickname string            `json:"nickname"`
	Fields   map[string]string `json:"fields"`
}

// AnnotatedProfile is a profile paired with the identity that published it.
// The pairing is reconstructed at read time from link provenance and entry
// metadata; the stored profile itself carries no identity field.
type AnnotatedProfile struct {
	Identity cas.Identity
	Profile  Profile
}

// ErrPrefixTooShort is the error returned by Search for prefixes shorter
// than the bucket width. This is a hard precondition:
// a shorter prefix cannot be resolved to a single bucket
// without a full directory scan.
var ErrPrefixTooShort = errors.New("cannot search with a prefix less than 3 characters")

// Service is the profile directory bound to a publishing identity.
type Service struct {
	store    cas.Store
	identity cas.Identity
	resolve  index.Resolve
}

// Option configures a Service.
type Option func(*Service)

// WithResolve sets the policy for reading an identity that has published
// more than once. The default is index.ResolveFirst.
// Publication always accumulates either way:
// the store is append-only and links are never removed.
func WithResolve(r index.Resolve) Option {
	return func(s *Service) { s.resolve = r }
}

// New produces a Service that publishes as `id` against `store`.
func New(store cas.Store, id cas.Identity, opts ...Option) *Service {
	s := &Service{store: store, identity: id}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish stores the profile entry and creates its two index links:
// bucket -> profile and identity -> profile.
//
// The entry write happens before the nickname is bucketed,
// so publishing a nickname shorter than the bucket width stores the entry
// and then fails with bucket.ErrShortNickname,
// leaving the profile unindexed and unsearchable.
// A failure between the two link writes likewise leaves the entry
// reachable from only one index; nothing is rolled back.
// Retrying is safe at the entry level
// (content addressing deduplicates identical profiles)
// and at the link level (link creation is idempotent).
func (s *Service) Publish(ctx context.Context, p Profile) (AnnotatedProfile, error) {
	ref, _, err := cas.PutJSON(ctx, s.store, p, s.identity)
	if err != nil {
		return AnnotatedProfile{}, errors.Wrap(err, "storing profile")
	}

	key, err := bucket.Of(p.Nickname)
	if err != nil {
		return AnnotatedProfile{}, err
	}

	bref, err := bucket.Ensure(ctx, s.store, key, s.identity)
	if err != nil {
		return AnnotatedProfile{}, err
	}

	err = index.Profile(ctx, s.store, bref, key, s.identity, ref)
	if err != nil {
		return AnnotatedProfile{}, err
	}

	return AnnotatedProfile{Identity: s.identity, Profile: p}, nil
}

// GetByIdentity returns the profile published by `id`,
// paired with that identity.
// The boolean return value reports whether a profile was found;
// absence is a legitimate outcome, not an error.
func (s *Service) GetByIdentity(ctx context.Context, id cas.Identity) (AnnotatedProfile, bool, error) {
	ref, ok, err := index.ForIdentity(ctx, s.store, id, s.resolve)
	if err != nil || !ok {
		return AnnotatedProfile{}, false, err
	}

	var p Profile
	_, err = cas.GetJSON(ctx, s.store, ref, &p)
	if stderrs.Is(err, cas.ErrNotFound) {
		// The link is visible but the entry is not (yet):
		// the partial-visibility window of an eventually consistent store.
		return AnnotatedProfile{}, false, nil
	}
	if err != nil {
		return AnnotatedProfile{}, false, errors.Wrapf(err, "getting profile %s", ref)
	}

	return AnnotatedProfile{Identity: id, Profile: p}, true, nil
}

// GetManyByIdentity returns the profiles of all requested identities that
// have published, in two batched round trips:
// one link query and one entry fetch.
// Identities with no profile are silently dropped.
// The order of results is not guaranteed to match the input order.
func (s *Service) GetManyByIdentity(ctx context.Context, ids []cas.Identity) ([]AnnotatedProfile, error) {
	refs, err := index.ForIdentities(ctx, s.store, ids, s.resolve)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, refs)
}

// Search returns the profiles whose nickname starts
// (case-insensitively) with the given prefix's first three characters.
// It fails with ErrPrefixTooShort before any store access
// if the prefix is shorter than that.
// Search reads exactly one bucket and never creates one:
// the bucket ref is computed, not ensured,
// and an absent bucket simply has no links.
func (s *Service) Search(ctx context.Context, prefix string) ([]AnnotatedProfile, error) {
	if utf8.RuneCountInString(prefix) < bucket.Width {
		return nil, ErrPrefixTooShort
	}

	key, err := bucket.Of(prefix)
	if err != nil {
		return nil, err
	}

	ref, err := bucket.NodeRef(key)
	if err != nil {
		return nil, err
	}

	return s.profilesAt(ctx, ref)
}

// ListAll enumerates every bucket below the root node and gathers the
// profiles of each, flattened into one list.
// This is the most expensive operation
// (total bucket count times average bucket size)
// and is intended for small-to-moderate directories.
func (s *Service) ListAll(ctx context.Context) ([]AnnotatedProfile, error) {
	rootRef, err := bucket.RootRef()
	if err != nil {
		return nil, err
	}

	children, err := bucket.Children(ctx, s.store, rootRef)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	gathered := make([][]AnnotatedProfile, len(children))
	for i, child := range children {
		if child.Tag.Kind != cas.TagBucket {
			continue
		}
		i, child := i, child
		g.Go(func() error {
			aps, err := s.profilesAt(gctx, child.Target)
			if err != nil {
				return err
			}
			gathered[i] = aps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var result []AnnotatedProfile
	for _, aps := range gathered {
		result = append(result, aps...)
	}
	return result, nil
}

func (s *Service) profilesAt(ctx context.Context, node cas.Ref) ([]AnnotatedProfile, error) {
	refs, err := index.ProfilesUnder(ctx, s.store, node)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, refs)
}

// fetch batch-fetches profile entries and reconstructs each
// AnnotatedProfile from the entry's write metadata.
// Refs whose entries are not (yet) visible are skipped,
// mirroring the partial-visibility tolerance of the read operations.
// The result is keyed by ref, so the same entry is never returned twice.
func (s *Service) fetch(ctx context.Context, refs []cas.Ref) ([]AnnotatedProfile, error) {
	entries, err := s.store.GetMulti(ctx, refs)
	if err != nil {
		return nil, errors.Wrap(err, "getting profile entries")
	}

	result := make([]AnnotatedProfile, 0, len(entries))
	for ref, thunk := range entries {
		e, err := thunk(ctx)
		if stderrs.Is(err, cas.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "getting profile %s", ref)
		}

		var p Profile
		if err := json.Unmarshal(e.Blob, &p); err != nil {
			return nil, errors.Wrapf(err, "unmarshaling profile %s", ref)
		}
		result = append(result, AnnotatedProfile{Identity: e.Author, Profile: p})
	}
	return result, nil
}
