// Package id generates time-ordered identifiers.
//
// Identifiers are ULIDs rendered lowercase: 26 characters, lexicographic
// order matches creation order, safe for use in URLs and storage keys.
package id

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New generates a lowercase ULID.
func New() string {
	return strings.ToLower(ulid.Make().String())
}
