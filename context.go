package carvpath

import (
	"context"
	"hash"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Context parses and encodes carvpaths
// relative to a long-path Store.
// An application normally needs just one.
//
// A Context holds no mutable state of its own
// and is safe for concurrent use if its Store is.
type Context struct {
	store       Store
	maxTokenLen int
	newHash     func() hash.Hash
}

// Option is the type of an option that can be passed to NewContext.
type Option func(*Context)

// WithMaxTokenLen sets the length above which encoded carvpaths
// are replaced with digest tokens.
// The default is DefaultMaxTokenLen.
func WithMaxTokenLen(n int) Option {
	return func(c *Context) {
		c.maxTokenLen = n
	}
}

// WithHash sets the hash function used for opportunistic hashing
// in boxes made from this Context.
// The default is HashBLAKE2b.
func WithHash(f func() hash.Hash) Option {
	return func(c *Context) {
		c.newHash = f
	}
}

// HashBLAKE2b produces an unkeyed BLAKE2b-256 hash.
func HashBLAKE2b() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(err)
	}
	return h
}

// HashBLAKE3 produces a BLAKE3 hash with a 256-bit output.
func HashBLAKE3() hash.Hash {
	return blake3.New()
}

// NewContext produces a new Context storing long carvpaths in s.
func NewContext(s Store, opts ...Option) *Context {
	c := &Context{
		store:       s,
		maxTokenLen: DefaultMaxTokenLen,
		newHash:     HashBLAKE2b,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store is the long-path store of c.
func (c *Context) Store() Store {
	return c.store
}

// MaxTokenLen is the length above which c encodes carvpaths as digests.
func (c *Context) MaxTokenLen() int {
	return c.maxTokenLen
}

// Parse parses a possibly nested carvpath,
// such as "0+20000_40000+20000/10000+20000".
// Each "/"-separated level is interpreted relative to the level before it,
// and the result is the last level projected all the way down.
// Digest tokens are looked up in the long-path store.
//
// Parse sets no upper limit on the resulting offsets.
// Check the result with Top.Test to validate it against real data.
//
// The error wraps ErrParse, ErrOutOfBounds, or ErrDigestMiss.
func (c *Context) Parse(ctx context.Context, path string) (Entity, error) {
	var (
		result Entity
		first  = true
	)
	for _, level := range strings.Split(path, "/") {
		ent, err := c.parseLevel(ctx, level)
		if err != nil {
			return Entity{}, err
		}
		if first {
			result, first = ent, false
			continue
		}
		result, err = result.Subentity(ent)
		if err != nil {
			return Entity{}, errors.Wrapf(err, "projecting %s", level)
		}
	}
	return result, nil
}

func (c *Context) parseLevel(ctx context.Context, level string) (Entity, error) {
	if !strings.HasPrefix(level, "D") {
		return ParseEntity(level)
	}
	if !IsDigest(level) {
		return Entity{}, errors.Wrapf(ErrParse, "digest token %q", level)
	}
	text, err := c.store.Get(ctx, level)
	if errors.Is(err, ErrNotFound) {
		return Entity{}, errors.Wrapf(ErrDigestMiss, "%s", level)
	}
	if err != nil {
		return Entity{}, errors.Wrapf(err, "looking up %s", level)
	}
	return ParseEntity(text)
}

// Encode produces the name of e:
// its carvpath text,
// or, if that is longer than the maximum token length,
// a digest token standing in for it.
// In the latter case the text is added to the long-path store.
func (c *Context) Encode(ctx context.Context, e Entity) (string, error) {
	text := e.String()
	if len(text) <= c.maxTokenLen {
		return text, nil
	}
	digest, _, err := c.store.Put(ctx, text)
	return digest, errors.Wrapf(err, "storing long path for %s", Digest(text))
}

// NewTop produces a Top for data of the given size.
func (c *Context) NewTop(size uint64) *Top {
	return NewTop(size)
}

// NewBox produces a new, empty Box tracking entities within top.
// Changes in the set of referenced bytes are reported to adv,
// which may be nil.
func (c *Context) NewBox(top *Top, adv Advisor) *Box {
	return newBox(c, top, adv)
}
