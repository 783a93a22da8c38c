package postgresengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
)

func Test_WithTablePrefix(t *testing.T) {
	testCases := []struct {
		name        string
		prefix      string
		expectedErr bool
	}{
		{name: "default style prefix", prefix: "circulation_"},
		{name: "digits allowed after the first character", prefix: "lib2_"},
		{name: "empty", prefix: "", expectedErr: true},
		{name: "upper case", prefix: "Lib_", expectedErr: true},
		{name: "sql injection", prefix: "x; DROP TABLE y; --", expectedErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			store := &LedgerStore{tables: newTableNames(defaultTablePrefix)}

			// act
			err := WithTablePrefix(tc.prefix)(store)

			// assert
			if tc.expectedErr {
				assert.Error(t, err)
				assert.Equal(t, "circulation_loans", store.tables.loans)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.prefix+"license_pools", store.tables.pools)
			assert.Equal(t, tc.prefix+"schema_migrations", store.tables.migrations)
		})
	}
}

func Test_WithTablePrefix_EmptyIsSentinel(t *testing.T) {
	// act
	err := WithTablePrefix("")(&LedgerStore{})

	// assert
	assert.ErrorIs(t, err, circulation.ErrEmptyTablePrefix)
}
