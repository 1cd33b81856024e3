// Package session owns everything addressed by a session identifier: the
// identifier grammar, sandboxed path construction and the on-disk store of a
// session's input, output and cache marker.
package session

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jsamuelsen11/cclog-share/internal/models"
)

// IDLength is the length of the canonical textual form of an ID.
const IDLength = 36

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// ID is a validated session identifier: a random (version 4) UUID in its
// canonical lower-case 8-4-4-4-12 form. The only ways to obtain a non-zero ID
// are Parse and New, so holding one means the value is safe to use as a path
// segment.
type ID struct {
	value string
}

// New returns a fresh server-generated identifier.
func New() ID {
	return ID{value: uuid.New().String()}
}

// Parse validates candidate against the identifier grammar.
func Parse(candidate string) (ID, error) {
	if len(candidate) != IDLength {
		return ID{}, models.NewInvalidIdentifier("identifier must be 36 characters")
	}
	if !idPattern.MatchString(candidate) {
		return ID{}, models.NewInvalidIdentifier("identifier is not a version 4 UUID")
	}

	u, err := uuid.Parse(candidate)
	if err != nil {
		return ID{}, models.NewInvalidIdentifier(err.Error())
	}
	return ID{value: strings.ToLower(u.String())}, nil
}

// String returns the canonical form.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether id was never produced by Parse or New.
func (id ID) IsZero() bool {
	return id.value == ""
}
