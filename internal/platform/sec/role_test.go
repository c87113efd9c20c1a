// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

/*
TestParseRole verifies strict parsing of the closed role enum.
*/
func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    sec.Role
		wantErr bool
	}{
		{"admin", "admin", sec.RoleAdmin, false},
		{"partner", "partner", sec.RolePartner, false},
		{"operator", "operator", sec.RoleOperator, false},
		{"user", "user", sec.RoleUser, false},
		{"guest", "guest", sec.RoleGuest, false},
		{"unknown_is_rejected", "superuser", "", true},
		{"empty_is_rejected", "", "", true},
		{"case_sensitive", "Admin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := sec.ParseRole(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}
}

/*
TestRole_AtLeast verifies the privilege ordering admin > partner > operator > user > guest.
*/
func TestRole_AtLeast(t *testing.T) {
	ordered := []sec.Role{sec.RoleGuest, sec.RoleUser, sec.RoleOperator, sec.RolePartner, sec.RoleAdmin}

	for i, lower := range ordered {
		for j, higher := range ordered {
			got := higher.AtLeast(lower)
			assert.Equal(t, j >= i, got, "%s.AtLeast(%s)", higher, lower)
		}
	}
}

/*
TestRole_IsScoped verifies that only partner and operator roles require tenant scope.
*/
func TestRole_IsScoped(t *testing.T) {
	assert.True(t, sec.RolePartner.IsScoped())
	assert.True(t, sec.RoleOperator.IsScoped())
	assert.False(t, sec.RoleAdmin.IsScoped())
	assert.False(t, sec.RoleUser.IsScoped())
	assert.False(t, sec.RoleGuest.IsScoped())
}
