package cas

import (
	"fmt"
	"strings"
	"time"
)

// TagKind enumerates the closed set of link tag families.
type TagKind byte

const (
	// TagBucket tags a link from a directory node to a profile entry
	// (and from the root node to a bucket node).
	// The tag carries the literal lower-cased nickname prefix.
	TagBucket TagKind = iota + 1

	// TagProfile tags a link from an identity's address to a profile entry.
	TagProfile
)

// Tag is a link tag: one of a fixed set of kinds,
// plus the prefix payload for bucket tags.
// Tags are comparable and round-trip through a compact wire string,
// so no reader ever parses free-form tag bytes.
type Tag struct {
	Kind   TagKind
	Prefix string
}

// BucketTag produces the tag for bucket links carrying the given prefix.
func BucketTag(prefix string) Tag {
	return Tag{Kind: TagBucket, Prefix: prefix}
}

// ProfileTag produces the fixed tag for identity-to-profile links.
func ProfileTag() Tag {
	return Tag{Kind: TagProfile}
}

const bucketTagPrefix = "bucket:"

// String renders the tag's wire form:
// "bucket:<prefix>" for bucket tags, "profile" for the profile tag.
func (t Tag) String() string {
	switch t.Kind {
	case TagBucket:
		return bucketTagPrefix + t.Prefix
	case TagProfile:
		return "profile"
	}
	return fmt.Sprintf("invalid(%d)", t.Kind)
}

// ParseTag parses a tag's wire form.
func ParseTag(s string) (Tag, error) {
	if s == "profile" {
		return ProfileTag(), nil
	}
	if strings.HasPrefix(s, bucketTagPrefix) {
		return BucketTag(strings.TrimPrefix(s, bucketTagPrefix)), nil
	}
	return Tag{}, fmt.Errorf("unknown tag %q", s)
}

// Link is a directed, tagged edge between two refs,
// stamped with the time the store accepted it.
// Links are append-only: created once, never updated or deleted.
type Link struct {
	Source Ref
	Target Ref
	Tag    Tag
	At     time.Time
}
