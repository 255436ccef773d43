package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationParams_Validate(t *testing.T) {
	tests := []struct {
		name          string
		input         PaginationParams
		expectedLimit int
	}{
		{"valid parameters", PaginationParams{Limit: 20}, 20},
		{"zero limit defaults", PaginationParams{Limit: 0}, defaultPageLimit},
		{"negative limit defaults", PaginationParams{Limit: -10}, defaultPageLimit},
		{"limit over max is capped", PaginationParams{Limit: 5000}, maxPageLimit},
		{"limit at max stays", PaginationParams{Limit: maxPageLimit}, maxPageLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.input
			params.Validate()
			assert.Equal(t, tt.expectedLimit, params.Limit)
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	assert.Empty(t, EncodeCursor(""))

	key := "sub:idx:created:2026-01-01T00:00:00.000000000Z\x00sub_abc"
	decoded, err := DecodeCursor(EncodeCursor(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	decoded, err = DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	_, err := DecodeCursor("!!!not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
