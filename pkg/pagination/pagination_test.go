package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-5))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC),
		ID:        uuid.New(),
	}

	parsed, err := ParseCursor(EncodeCursor(original))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.CreatedAt.Equal(original.CreatedAt))
	assert.Equal(t, original.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	parsed, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	_, err = ParseCursor("%%%")
	assert.Error(t, err)

	_, err = ParseCursor("bm8tc2VwYXJhdG9y")
	assert.Error(t, err)
}

func TestBuildPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(1 * time.Minute), ID: uuid.New()},
	}
	identity := func(c Cursor) Cursor { return c }

	page := BuildPage(rows, 2, identity)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, next.ID)

	last := BuildPage(rows[2:], 2, identity)
	assert.Len(t, last.Items, 1)
	assert.Empty(t, last.NextCursor)
}
