package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2024, 3, 10, 12, 30, 45, 123456789, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyCursorMeansNone(t *testing.T) {
	out, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// valid base64, invalid json
	_, err = DecodeCursor("bm90LWpzb24")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
