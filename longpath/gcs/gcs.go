// Package gcs implements a long-path store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/carvpath"
	"github.com/bobg/carvpath/longpath"
)

var _ carvpath.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a long-path store.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

const objPrefix = "longpath/"

func objName(digest string) string {
	return objPrefix + digest
}

// Get gets the carvpath text for a digest token.
func (s *Store) Get(ctx context.Context, digest string) (string, error) {
	name := objName(digest)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return "", carvpath.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	return string(b), errors.Wrapf(err, "reading contents of object %s", name)
}

// Put adds a carvpath to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, path string) (string, bool, error) {
	var (
		digest = carvpath.Digest(path)
		name   = objName(digest)
		obj    = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w      = obj.NewWriter(ctx)
	)

	if _, err := io.WriteString(w, path); err != nil {
		w.Close()
		return "", false, errors.Wrapf(err, "writing object %s", name)
	}

	// A failed precondition is reported when the upload completes.
	err := w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return digest, false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "writing object %s", name)
	}
	return digest, true, nil
}

// List produces all digests in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, start string, f func(string) error) error {
	q := &storage.Query{Prefix: objPrefix}
	if start != "" {
		// StartOffset is inclusive.
		q.StartOffset = objName(start)
	}
	iter := s.bucket.Objects(ctx, q)
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		digest := strings.TrimPrefix(attrs.Name, objPrefix)
		if digest <= start || !carvpath.IsDigest(digest) {
			continue
		}
		if err = f(digest); err != nil {
			return err
		}
	}
}

// Config is the configuration of a gcs Store.
type Config struct {
	Creds  string `mapstructure:"creds"`
	Bucket string `mapstructure:"bucket"`
}

func init() {
	longpath.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (carvpath.Store, error) {
		var c Config
		if err := mapstructure.Decode(conf, &c); err != nil {
			return nil, errors.Wrap(err, "decoding gcs store config")
		}
		if c.Creds == "" {
			return nil, errors.New(`missing "creds" parameter`)
		}
		if c.Bucket == "" {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		client, err := storage.NewClient(ctx, option.WithCredentialsFile(c.Creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(client.Bucket(c.Bucket)), nil
	})
}
