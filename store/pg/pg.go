// Package pg implements an addressable store backed by Postgresql.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"profiledir/cas"
	"profiledir/store"
)

var _ cas.Store = &Store{}

// Store is a Postgresql-based addressable store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `entries` and `links` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
  ref BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL,
  author BYTEA NOT NULL,
  at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS links (
  source BYTEA NOT NULL,
  target BYTEA NOT NULL,
  tag TEXT NOT NULL,
  at TIMESTAMP WITH TIME ZONE NOT NULL,
  PRIMARY KEY (source, target, tag)
);

CREATE INDEX IF NOT EXISTS link_source_idx ON links (source, tag);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `entries` and `links`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the entry with hash `ref`.
func (s *Store) Get(ctx context.Context, ref cas.Ref) (cas.Entry, error) {
	const q = `SELECT data, author, at FROM entries WHERE ref = $1`

	var (
		data   []byte
		author []byte
		at     time.Time
	)
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&data, &author, &at)
	if stderrs.Is(err, sql.ErrNoRows) {
		return cas.Entry{}, cas.ErrNotFound
	}
	if err != nil {
		return cas.Entry{}, errors.Wrap(err, "querying entry")
	}

	return cas.Entry{Blob: data, Author: author, At: at}, nil
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

// Put adds a blob to the store if it wasn't already present.
// The author and write time are recorded only on first add.
func (s *Store) Put(ctx context.Context, b cas.Blob, author cas.Identity) (cas.Ref, bool, error) {
	const q = `INSERT INTO entries (ref, data, author, at) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref, []byte(b), []byte(author), time.Now().UTC())
	if err != nil {
		return cas.Ref{}, false, errors.Wrap(err, "inserting entry")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return cas.Ref{}, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// Link creates the edge (source, target, tag) if it does not already exist.
func (s *Store) Link(ctx context.Context, source, target cas.Ref, tag cas.Tag) error {
	const q = `INSERT INTO links (source, target, tag, at) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`

	_, err := s.db.ExecContext(ctx, q, source, target, tag.String(), time.Now().UTC())
	return errors.Wrap(err, "inserting link")
}

// LinksFrom returns the outbound links of `source` in creation order,
// optionally filtered by tag.
func (s *Store) LinksFrom(ctx context.Context, source cas.Ref, tag *cas.Tag) ([]cas.Link, error) {
	var (
		result []cas.Link
		add    = func(target cas.Ref, tagstr string, at time.Time) error {
			parsed, err := cas.ParseTag(tagstr)
			if err != nil {
				return err
			}
			result = append(result, cas.Link{Source: source, Target: target, Tag: parsed, At: at})
			return nil
		}
	)

	if tag != nil {
		const q = `SELECT target, tag, at FROM links WHERE source = $1 AND tag = $2 ORDER BY at, target`
		err := sqlutil.ForQueryRows(ctx, s.db, q, source, tag.String(), add)
		return result, errors.Wrap(err, "querying links")
	}

	const q = `SELECT target, tag, at FROM links WHERE source = $1 ORDER BY at, target`
	err := sqlutil.ForQueryRows(ctx, s.db, q, source, add)
	return result, errors.Wrap(err, "querying links")
}

// LinksFromMulti resolves the outbound links of several sources in one call.
func (s *Store) LinksFromMulti(ctx context.Context, sources []cas.Ref, tag *cas.Tag) ([][]cas.Link, error) {
	result := make([][]cas.Link, 0, len(sources))
	for _, source := range sources {
		links, err := s.LinksFrom(ctx, source, tag)
		if err != nil {
			return nil, err
		}
		result = append(result, links)
	}
	return result, nil
}

// ListRefs produces all entry refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start cas.Ref, f func(cas.Ref) error) error {
	const q = `SELECT ref FROM entries WHERE ref > $1 ORDER BY ref`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, func(ref cas.Ref) error {
		return f(ref)
	})
}

// ListLinks produces all links in the store,
// ordered by source ref and then by creation.
func (s *Store) ListLinks(ctx context.Context, f func(cas.Link) error) error {
	const q = `SELECT source, target, tag, at FROM links ORDER BY source, at, target`
	return sqlutil.ForQueryRows(ctx, s.db, q, func(source, target cas.Ref, tagstr string, at time.Time) error {
		tag, err := cas.ParseTag(tagstr)
		if err != nil {
			return err
		}
		return f(cas.Link{Source: source, Target: target, Tag: tag, At: at})
	})
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
