// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgx5URL(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"postgres scheme", "postgres://u:p@db:5432/voltgrid", "pgx5://u:p@db:5432/voltgrid"},
		{"postgresql scheme", "postgresql://u:p@db:5432/voltgrid", "pgx5://u:p@db:5432/voltgrid"},
		{"already pgx5", "pgx5://u:p@db:5432/voltgrid", "pgx5://u:p@db:5432/voltgrid"},
		{"unrecognized left alone", "host=db user=u", "host=db user=u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pgx5URL(tt.dsn))
		})
	}
}
