package carvpath

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// DefaultMaxTokenLen is the length above which Context.Encode
// replaces carvpath text with a digest token.
const DefaultMaxTokenLen = 160

// Digest produces the digest token standing in for some long carvpath text:
// "D" followed by the hex BLAKE2b-256 hash of the text.
func Digest(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return "D" + hex.EncodeToString(sum[:])
}

// IsDigest tells whether token is syntactically a digest token.
func IsDigest(token string) bool {
	if len(token) != 1+2*blake2b.Size256 || token[0] != 'D' {
		return false
	}
	for _, c := range token[1:] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func parseSegment(tok string) (Segment, error) {
	if strings.HasPrefix(tok, "S") {
		size, err := parseUint(tok[1:])
		if err != nil {
			return Segment{}, errors.Wrapf(err, "sparse token %q", tok)
		}
		return Sparse(size), nil
	}

	offstr, sizestr, ok := strings.Cut(tok, "+")
	if !ok {
		return Segment{}, errors.Wrapf(ErrParse, "token %q", tok)
	}
	off, err := parseUint(offstr)
	if err != nil {
		return Segment{}, errors.Wrapf(err, "offset in token %q", tok)
	}
	size, err := parseUint(sizestr)
	if err != nil {
		return Segment{}, errors.Wrapf(err, "size in token %q", tok)
	}
	if size > math.MaxUint64-off {
		return Segment{}, errors.Wrapf(ErrParse, "token %q overflows", tok)
	}
	return Fragment(off, size), nil
}

// parseUint accepts only plain decimal digits.
func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, errors.Wrap(ErrParse, "missing number")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(ErrParse, "bad number %q", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrParse, "number %q: %s", s, err)
	}
	return n, nil
}
