// Package cas describes the content-addressable, link-based store that the
// profile directory is built on.
//
// The store holds arbitrarily sized byte sequences,
// or _blobs_,
// and indexes them by their sha2-256 hash,
// which is used as a unique key.
// This key is called the blob's reference, or _ref_.
// The fact that the lookup key is computed from a blob's content,
// rather than by its location or the order in which it was added,
// is the meaning of "content-addressable."
// It also makes Put naturally idempotent:
// storing the same bytes twice yields the same ref and a single entry.
//
// Content addressability means that if some data changes,
// so does its ref,
// so a plain blob store has no way to say
// "these two pieces of data belong together."
// For that, this store adds _links_:
// directed, tagged edges between two refs.
// A link never changes the data it connects;
// it is an append-only index entry.
// Tags are a closed union
// (a bucket tag carrying a literal nickname prefix,
// and a fixed profile tag)
// so that readers can traverse one family of edges
// without parsing free-form strings.
//
// Every stored value carries write metadata:
// the identity that wrote it and the time of the write.
// Read paths use that provenance to pair a profile
// with the identity that published it.
//
// Durability, replication, and retry policy belong to whichever Store
// implementation is plugged in (see the store subpackages);
// this package only states the contract.
package cas
