// Package pg implements a long-path store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is a Postgresql-based long-path store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `longpaths` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
// The "C" collation makes ORDER BY agree with byte-wise string comparison.
const Schema = `
CREATE TABLE IF NOT EXISTS longpaths (
  digest TEXT COLLATE "C" PRIMARY KEY NOT NULL,
  path TEXT NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create the table `longpaths`,
// or for that table already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	const q = `SELECT path FROM longpaths WHERE digest = $1`

	var path string
	err := s.db.QueryRowContext(ctx, q, digest).Scan(&path)
	if stderrs.Is(err, sql.ErrNoRows) {
		return "", carvpath.ErrNotFound
	}
	return path, errors.Wrapf(err, "getting %s", digest)
}

// Put adds a carvpath to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	const q = `INSERT INTO longpaths (digest, path) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	digest := carvpath.Digest(path)
	res, err := s.db.ExecContext(ctx, q, digest, path)
	if err != nil {
		return "", false, errors.Wrap(err, "inserting path")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return "", false, errors.Wrap(err, "counting affected rows")
	}

	return digest, aff > 0, nil
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	const q = `SELECT digest FROM longpaths WHERE digest > $1 ORDER BY digest`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, f)
}

// Config is the configuration of a pg Store.
type Config struct {
	Conn string `mapstructure:"conn"`
}

func init() {
	longpath.Register("pg", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding pg store config")
		}
		if c.Conn == "" {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", c.Conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
