// Package stream implements the stream naming scheme of the message store.
//
// A stream name has the form
//
//	<category>-<id>
//	<category>:<qualifier>-<id>
//
// The first "-" separates the category from the identifier. A category is a
// word of ASCII letters, digits and underscores, optionally followed by a
// ":" and a qualifier (letters, digits, underscores and "+"). The identifier
// is everything after the first "-" and may itself contain "-". An
// identifier of the form "cardinal+part" is a compound id whose cardinal id
// is "cardinal".
//
//	Category("user-1f3c")        == "user"
//	Category("user:command-1")   == "user:command"
//	Category("user")             == "user"
//	Category("test_stream-123")  == "test_stream"
//	Category("bad name-1")       == ""
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

const (
	// IDSeparator separates the category from the identifier.
	IDSeparator = '-'
	// QualifierSeparator separates the category word from its qualifier.
	QualifierSeparator = ':'
	// CompoundSeparator separates the cardinal id from the rest of a compound id.
	CompoundSeparator = '+'

	// MaxLength is the maximum length of a stream name in bytes.
	MaxLength = 255
)

var (
	ErrInvalidStreamName = errors.New("invalid stream name")
)

// Name is a parsed stream name.
type Name struct {
	// Category is the full category including the qualifier, e.g. "user:command".
	Category string
	// Qualifier is the part after ":" in the category, empty if there is none.
	Qualifier string
	// ID is the stream identifier. It is empty for bare category names.
	ID string
}

func (n Name) String() string {
	if n.ID == "" {
		return n.Category
	}
	return n.Category + string(IDSeparator) + n.ID
}

// CardinalID returns the part of the id before the first "+".
func (n Name) CardinalID() string { return cardinal(n.ID) }

// IsCategory reports whether the name has no identifier.
func (n Name) IsCategory() bool { return n.ID == "" }

// New builds a stream name from a category and an id.
func New(category, id string) (Name, error) {
	if !validCategory(category) {
		return Name{}, fmt.Errorf("%w: category %q", ErrInvalidStreamName, category)
	}
	if !validID(id) {
		return Name{}, fmt.Errorf("%w: id %q", ErrInvalidStreamName, id)
	}
	if n := len(category) + 1 + len(id); n > MaxLength {
		return Name{}, fmt.Errorf("%w: %d bytes, at most %d allowed", ErrInvalidStreamName, n, MaxLength)
	}
	return Name{Category: category, Qualifier: qualifier(category), ID: id}, nil
}

// Parse parses a full stream name. Bare categories are rejected.
func Parse(s string) (Name, error) {
	cat, id, ok := strings.Cut(s, string(IDSeparator))
	if !ok {
		return Name{}, fmt.Errorf("%w: %q has no identifier", ErrInvalidStreamName, s)
	}
	return New(cat, id)
}

// ParseCategory parses a category name. Full stream names are rejected.
func ParseCategory(s string) (Name, error) {
	if !validCategory(s) || len(s) > MaxLength {
		return Name{}, fmt.Errorf("%w: category %q", ErrInvalidStreamName, s)
	}
	return Name{Category: s, Qualifier: qualifier(s)}, nil
}

// Validate returns an error wrapping ErrInvalidStreamName if s is not a full stream name.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// Category derives the category of a stream name. It returns "" for empty or
// malformed input and the input itself for a valid bare category.
func Category(s string) string {
	cat, _, _ := strings.Cut(s, string(IDSeparator))
	if !validCategory(cat) {
		return ""
	}
	return cat
}

// ID returns the identifier of a stream name, or "" if there is none.
func ID(s string) string {
	if Category(s) == "" {
		return ""
	}
	_, id, _ := strings.Cut(s, string(IDSeparator))
	return id
}

// CardinalID returns the identifier up to the first "+".
func CardinalID(s string) string { return cardinal(ID(s)) }

// Qualifier returns the qualifier of the category of s, e.g. "command" for "user:command-1".
func Qualifier(s string) string { return qualifier(Category(s)) }

// IsCategory reports whether s is a valid bare category.
func IsCategory(s string) bool {
	return validCategory(s)
}

// Hash64 returns a stable, non-negative hash of s. It is used to partition
// streams between members of a consumer group.
func Hash64(s string) int64 {
	sum := blake2b.Sum256([]byte(s))
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}

// === helpers ===

func cardinal(id string) string {
	c, _, _ := strings.Cut(id, string(CompoundSeparator))
	return c
}

func qualifier(category string) string {
	_, q, _ := strings.Cut(category, string(QualifierSeparator))
	return q
}

func validCategory(s string) bool {
	word, q, hasQ := strings.Cut(s, string(QualifierSeparator))
	if !validWord(word, false) {
		return false
	}
	if hasQ {
		return validWord(q, true)
	}
	return true
}

func validWord(s string, allowPlus bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		case c == CompoundSeparator && allowPlus:
		default:
			return false
		}
	}
	return true
}

func validID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
