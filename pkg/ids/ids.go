// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package ids generates the prefixed, opaque entity identifiers used across Voltgrid.

Every primary key is a ULID behind a short type prefix (e.g. "USR-01J8..."), which
keeps identifiers time-sortable for B-tree friendliness while making the entity
type visible in logs and support tickets.

The prefix is part of the identifier: it is stored, compared, and returned to
clients verbatim.
*/
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// # Entity Prefixes

const (
	// PrefixUser marks a local user directory record.
	PrefixUser = "USR"

	// PrefixRegistration marks a transient self-signup record.
	PrefixRegistration = "REG"

	// PrefixInvitation marks an admin-issued onboarding grant.
	PrefixInvitation = "INV"

	// PrefixAudit marks an append-only audit log entry.
	PrefixAudit = "AUD"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh identifier for the given entity prefix.
func New(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// HasPrefix reports whether id carries the given entity prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
