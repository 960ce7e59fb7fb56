package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-10-01T00:00:00Z"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", decoded.ID)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	type row struct{ id string }
	rows := []*row{{"a"}, {"b"}, {"c"}}

	info := BuildCursorPageInfo(rows, 2, func(r *row) string { return r.id })
	assert.True(t, info.HasMore)
	assert.Equal(t, "b", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 3, func(r *row) string { return r.id })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestNewPage(t *testing.T) {
	p := NewPage(0, 0)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, DefaultPageSize, p.Size)
	assert.Equal(t, 0, p.Offset())

	p = NewPage(3, 1000)
	assert.Equal(t, MaxPageSize, p.Size)
	assert.Equal(t, 2*MaxPageSize, p.Offset())
}
