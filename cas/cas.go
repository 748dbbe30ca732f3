package cas

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
)

type (
	// Blob is the type of a stored value's content.
	Blob []byte

	// Ref is the ref of a blob: its sha256 hash.
	Ref [sha256.Size]byte
)

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Ref.
var Zero Ref

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

func (r Ref) IsZero() bool {
	return r == Zero
}

func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}

func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// Value implements driver.Valuer, allowing Refs to be used directly as
// query parameters in the SQL-backed stores.
func (r Ref) Value() (driver.Value, error) {
	return r[:], nil
}

// Scan implements sql.Scanner.
func (r *Ref) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scanning %T as Ref", src)
	}
	if len(b) != sha256.Size {
		return fmt.Errorf("scanning Ref: got %d bytes, want %d", len(b), sha256.Size)
	}
	*r = RefFromBytes(b)
	return nil
}
