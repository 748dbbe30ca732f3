package cas

import (
	"context"
	"encoding/json"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"
)

// PutJSON stores the canonical-JSON encoding of v.
//
// Canonical JSON (not plain encoding/json) is what makes the address a pure
// function of the value: map fields encode with sorted keys, so two values
// that are equal produce byte-identical blobs and therefore the same ref.
func PutJSON(ctx context.Context, s Store, v interface{}, author Identity) (Ref, bool, error) {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return Ref{}, false, errors.Wrap(err, "marshaling canonical JSON")
	}
	return s.Put(ctx, Blob(b), author)
}

// GetJSON reads the entry at ref and parses its content into v.
// It returns the entry so callers can read the write metadata.
func GetJSON(ctx context.Context, g Getter, ref Ref, v interface{}) (Entry, error) {
	e, err := g.Get(ctx, ref)
	if err != nil {
		return Entry{}, err
	}
	return e, errors.Wrap(json.Unmarshal(e.Blob, v), "unmarshaling JSON")
}

// JSONRef computes the ref that PutJSON would store v under,
// without any store access or side effect.
func JSONRef(v interface{}) (Ref, error) {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return Ref{}, errors.Wrap(err, "marshaling canonical JSON")
	}
	return Blob(b).Ref(), nil
}
