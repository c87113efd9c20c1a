// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voltgrid/voltgrid/pkg/ids"
)

func TestNew(t *testing.T) {
	id := ids.New(ids.PrefixUser)

	assert.True(t, ids.HasPrefix(id, ids.PrefixUser))
	assert.Len(t, id, len(ids.PrefixUser)+1+26) // prefix, dash, ULID

	assert.NotEqual(t, id, ids.New(ids.PrefixUser))
}

func TestHasPrefix(t *testing.T) {
	assert.False(t, ids.HasPrefix("USR123", ids.PrefixUser))
	assert.False(t, ids.HasPrefix("REG-01ABC", ids.PrefixUser))
	assert.True(t, ids.HasPrefix("AUD-01ABC", ids.PrefixAudit))
}
