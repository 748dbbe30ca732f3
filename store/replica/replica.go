// Package replica implements a store that mirrors writes to several nested stores.
package replica

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"profiledir/cas"
	"profiledir/store"
)

var _ cas.Store = (*Store)(nil)

// Store is an addressable store that delegates reads and writes to two sets
// of nested stores. One set is synchronous:
// writes (entries and links) to all of these must succeed before a call
// returns, and an error from any will cause the call to fail.
// The other set is asynchronous:
// a call queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	sync   []cas.Store
	async  []asyncChans
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

// A queued write: either an entry (blob+author) or a link.
type write struct {
	blob   cas.Blob
	author cas.Identity

	isLink         bool
	source, target cas.Ref
	tag            cas.Tag
}

type asyncChans struct {
	writes chan<- write
	errs   <-chan error
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// writes will block until the request can be queued.
func New(ctx context.Context, syncStores, asyncStores []cas.Store, n int) *Store {
	result := &Store{sync: syncStores}

	if len(asyncStores) > 0 {
		ctx, result.cancel = context.WithCancel(ctx)

		selectCases := make([]reflect.SelectCase, 1+len(asyncStores))

		for i, a := range asyncStores {
			var (
				writes = make(chan write, n)
				errs   = make(chan error, 1)
			)

			result.async = append(result.async, asyncChans{writes: writes, errs: errs})

			selectCases[i].Dir = reflect.SelectRecv
			selectCases[i].Chan = reflect.ValueOf(errs)

			a := a
			go runAsync(ctx, a, writes, errs)
		}

		selectCases[len(asyncStores)].Dir = reflect.SelectRecv
		selectCases[len(asyncStores)].Chan = reflect.ValueOf(ctx.Done())

		go func() {
			_, errval, ok := reflect.Select(selectCases)
			if ok {
				result.cancel()
				result.mu.Lock()
				result.err = errval.Interface().(error)
				result.mu.Unlock()
			}
		}()
	}

	return result
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, s cas.Store, writes <-chan write, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case w := <-writes:
			var err error
			if w.isLink {
				err = s.Link(ctx, w.source, w.target, w.tag)
			} else {
				_, _, err = s.Put(ctx, w.blob, w.author)
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) enqueue(ctx context.Context, w write) error {
	for _, a := range s.async {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a.writes <- w:
		}
	}
	return nil
}

// Put stores the blob in all synchronous nested stores
// and queues it on the asynchronous ones.
//
// Some nested stores may already have the entry and others may not,
// in which case the value of `added`
// (the boolean return value)
// is indeterminate.
// (It is determined by the first nested store to finish.)
func (s *Store) Put(ctx context.Context, b cas.Blob, author cas.Identity) (cas.Ref, bool, error) {
	if err := s.checkErr(); err != nil {
		return cas.Zero, false, errors.Wrap(err, "in async-store goroutine")
	}

	type pairType struct {
		ref   cas.Ref
		added bool
	}

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan pairType, len(s.sync))
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			ref, added, err := nested.Put(gctx, b, author)
			if err != nil {
				return err
			}
			ch <- pairType{ref: ref, added: added}
			return nil
		})
	}

	if err := s.enqueue(ctx, write{blob: b, author: author}); err != nil {
		return cas.Zero, false, err
	}

	if err := g.Wait(); err != nil {
		if s.cancel != nil {
			s.cancel()
		}
		return cas.Zero, false, err
	}
	pair := <-ch
	return pair.ref, pair.added, nil
}

// Link creates the edge in all synchronous nested stores
// and queues it on the asynchronous ones.
func (s *Store) Link(ctx context.Context, source, target cas.Ref, tag cas.Tag) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			return nested.Link(gctx, source, target, tag)
		})
	}

	if err := s.enqueue(ctx, write{isLink: true, source: source, target: target, tag: tag}); err != nil {
		return err
	}

	if err := g.Wait(); err != nil {
		if s.cancel != nil {
			s.cancel()
		}
		return err
	}
	return nil
}

// Get delegates the request to all of the synchronous stores,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// one of those errors is returned.
func (s *Store) Get(ctx context.Context, ref cas.Ref) (cas.Entry, error) {
	var result cas.Entry
	err := s.race(ctx, func(ctx context.Context, nested cas.Store) (interface{}, error) {
		return nested.Get(ctx, ref)
	}, func(v interface{}) {
		result = v.(cas.Entry)
	})
	return result, err
}

// GetMulti gets multiple entries in one call.
func (s *Store) GetMulti(_ context.Context, refs []cas.Ref) (cas.GetMultiResult, error) {
	result := make(cas.GetMultiResult)
	for _, ref := range refs {
		ref := ref
		result[ref] = func(ctx context.Context) (cas.Entry, error) {
			return s.Get(ctx, ref)
		}
	}
	return result, nil
}

// LinksFrom races the synchronous stores and returns the first
// successful answer. Replicas may lag each other;
// like every read in this layer it is a best-effort view,
// not a linearizable snapshot.
func (s *Store) LinksFrom(ctx context.Context, source cas.Ref, tag *cas.Tag) ([]cas.Link, error) {
	var result []cas.Link
	err := s.race(ctx, func(ctx context.Context, nested cas.Store) (interface{}, error) {
		return nested.LinksFrom(ctx, source, tag)
	}, func(v interface{}) {
		result = v.([]cas.Link)
	})
	return result, err
}

// LinksFromMulti resolves the outbound links of several sources in one call.
func (s *Store) LinksFromMulti(ctx context.Context, sources []cas.Ref, tag *cas.Tag) ([][]cas.Link, error) {
	var result [][]cas.Link
	err := s.race(ctx, func(ctx context.Context, nested cas.Store) (interface{}, error) {
		return nested.LinksFromMulti(ctx, sources, tag)
	}, func(v interface{}) {
		result = v.([][]cas.Link)
	})
	return result, err
}

// race runs f against every synchronous store,
// delivering the first error-free result to accept.
func (s *Store) race(ctx context.Context, f func(context.Context, cas.Store) (interface{}, error), accept func(interface{})) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group

	ch := make(chan interface{})
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			v, err := f(ctx, nested)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- v:
			}
			return nil
		})
	}

	var (
		got  interface{}
		ok   bool
		err  error
		done = make(chan struct{})
	)

	go func() {
		got, ok = <-ch
		done <- struct{}{}
	}()

	go func() {
		err = g.Wait()
		done <- struct{}{}
	}()

	<-done
	if ok {
		accept(got)
		return nil
	}
	return err
}

// ListRefs delegates the request to all of the synchronous stores
// and synthesizes the result from the union of their refs.
func (s *Store) ListRefs(ctx context.Context, start cas.Ref, f func(cas.Ref) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	var (
		mu  sync.Mutex
		set = make(map[cas.Ref]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			return nested.ListRefs(gctx, start, func(ref cas.Ref) error {
				mu.Lock()
				set[ref] = struct{}{}
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	refs := make([]cas.Ref, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	for _, ref := range refs {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

// ListLinks delegates the request to all of the synchronous stores
// and synthesizes the result from the union of their links.
func (s *Store) ListLinks(ctx context.Context, f func(cas.Link) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	type linkKey struct {
		source, target cas.Ref
		tag            cas.Tag
	}

	var (
		mu    sync.Mutex
		seen  = make(map[linkKey]struct{})
		links []cas.Link
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			return nested.ListLinks(gctx, func(l cas.Link) error {
				k := linkKey{source: l.Source, target: l.Target, tag: l.Tag}
				mu.Lock()
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					links = append(links, l)
				}
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source.Less(links[j].Source)
		}
		return links[i].At.Before(links[j].At)
	})

	for _, l := range links {
		if err := f(l); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
		var (
			syncStores  []cas.Store
			asyncStores []cas.Store
		)

		syncConf, ok := conf["sync"].([]map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "sync" parameter`)
		}
		for _, nested := range syncConf {
			nestedType, ok := nested["type"].(string)
			if !ok {
				return nil, errors.New(`"sync" item missing "type"`)
			}
			nestedStore, err := store.Create(ctx, nestedType, nested)
			if err != nil {
				return nil, errors.Wrap(err, "creating nested sync store")
			}
			syncStores = append(syncStores, nestedStore)
		}

		asyncConf, ok := conf["async"].([]map[string]interface{})
		if ok {
			for _, nested := range asyncConf {
				nestedType, ok := nested["type"].(string)
				if !ok {
					return nil, errors.New(`"async" item missing "type"`)
				}
				nestedStore, err := store.Create(ctx, nestedType, nested)
				if err != nil {
					return nil, errors.Wrap(err, "creating nested async store")
				}
				asyncStores = append(asyncStores, nestedStore)
			}
		}

		queueLen := 10
		if n, ok := conf["queuelen"].(int); ok {
			queueLen = n
		}

		return New(ctx, syncStores, asyncStores, queueLen), nil
	})
}
