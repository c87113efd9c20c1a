// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

// Package normalize canonicalizes user-supplied identity strings.
//
// # Usage
//
// Usernames and email addresses are compared case-insensitively across the
// platform. This package produces the canonical form that is stored and used
// for uniqueness checks, so "José" and "jose" collide as expected.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Username converts an arbitrary Unicode string into a canonical ASCII username.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Converts to lowercase.
// 4. Drops every character outside [a-z0-9._-].
func Username(s string) string {
	// 1. Normalize and remove accents
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	result, _, _ := transform.String(t, s)

	// 2. Lowercase
	result = strings.ToLower(result)

	// 3. Keep only the username alphabet
	var b strings.Builder
	for _, r := range result {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Email lowercases and trims an email address for case-insensitive storage.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isMn reports whether the rune is a Unicode combining mark (category Mn).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
