package cas

import (
	"encoding/hex"
	"time"
)

// Identity is an opaque public key belonging to a participant.
// Identities are supplied by the host's identity subsystem;
// this package never creates or destroys them.
type Identity []byte

// Ref is the identity's address in the store:
// the hash of the raw key bytes.
// It is a pure function of the key,
// so any component can compute it without a store round trip.
func (id Identity) Ref() Ref {
	return Blob(id).Ref()
}

func (id Identity) String() string {
	return hex.EncodeToString(id)
}

// Equal reports whether two identities are the same key.
func (id Identity) Equal(other Identity) bool {
	return string(id) == string(other)
}

// Entry is a stored value together with the write metadata the store
// records for it: the identity that performed the write and when.
// The entry's content carries no identity field;
// provenance lives here and nowhere else.
type Entry struct {
	Blob   Blob
	Author Identity
	At     time.Time
}
