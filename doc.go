// Package carvpath names pieces of large data without copying them.
//
// A forensic tool working on a disk image
// finds files, and files within files,
// that are really just lists of byte ranges in the image.
// Rather than carve each of them out into a copy of its own,
// this package gives each such list a short textual name,
// a _carvpath_,
// from which the bytes can be found again in the original data.
//
// A carvpath is a sequence of _segments_ joined by underscores.
// A segment is either a fragment,
// written "offset+size",
// naming real bytes of the parent data,
// or a sparse region,
// written "S" followed by a size,
// standing for that many zero bytes that exist nowhere.
// So "0+4096_S8192_65536+4096" is 16,384 bytes long:
// the first 4096 bytes of the parent,
// then 8192 zeroes,
// then 4096 bytes from offset 65536.
// The decoded form of a carvpath is an Entity.
//
// Carvpaths nest.
// In "0+20000_40000+20000/10000+20000",
// the part after the slash addresses bytes of the 40,000-byte Entity before it,
// not of the parent data directly.
// Parsing such a path projects each level onto the one before it,
// here producing "10000+10000_40000+10000".
//
// Deeply fragmented data makes for long carvpaths.
// When the text of one exceeds a length limit
// (normally 160 bytes),
// it is replaced by a _digest token_:
// "D" followed by the hex BLAKE2b-256 hash of the text.
// The text itself goes in a long-path Store,
// which is content-addressable and may be shared among many processes.
// Implementations of Store are in the subpackages of longpath.
//
// A Context ties these together.
// It parses and encodes carvpaths relative to its Store,
// and it produces a Top,
// representing the full extent of some data,
// and a Box,
// which keeps reference counts on the entities in use within a Top.
// A Box tells an Advisor when bytes become wanted or unwanted,
// so that, for instance,
// the OS page cache can be kept full of bytes that some client is about to read
// and empty of bytes that nobody needs.
// It also computes a digest of each registered Entity's content
// as a side effect of the reads and writes reported to it
// (see OpportunisticHash).
//
// The repo subpackage applies all of this to a single growing file
// from which ranges are allocated for new data.
package carvpath
