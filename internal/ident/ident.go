// Package ident derives the display and tracking identifier of an upload
// from its file name.
package ident

import "strings"

// Identifier is the sanitized form of a file name. It keys the registry of
// cancelable uploads and the progress panel slot. Distinct names may share
// one Identifier ("a!.txt" and "a?.txt" both become "atxt").
type Identifier string

// Assign strips every character outside [A-Za-z0-9] from fileName.
// It is pure, deterministic and idempotent.
func Assign(fileName string) Identifier {
	var b strings.Builder
	b.Grow(len(fileName))
	for i := 0; i < len(fileName); i++ {
		c := fileName[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		}
	}
	return Identifier(b.String())
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return string(id)
}
