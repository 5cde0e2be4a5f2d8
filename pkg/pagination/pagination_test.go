package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(5000))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("   ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, raw := range []string{"%%%", "bm9waXBl", EncodeCursor(Cursor{}) + "x"} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestBuildPage(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Now().UTC()
	rows := []row{{uuid.New(), base}, {uuid.New(), base.Add(-time.Minute)}, {uuid.New(), base.Add(-2 * time.Minute)}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := BuildPage(rows, 2, key)
	require.Len(t, page.Items, 2)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, next.ID)

	last := BuildPage(rows[:1], 2, key)
	assert.Empty(t, last.NextCursor)

	empty := BuildPage[row](nil, 2, key)
	assert.NotNil(t, empty.Items)
}

type entry struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksEveryRowOnce(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:keyset?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&entry{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// two rows share each timestamp to exercise the id tiebreak
		require.NoError(t, conn.Create(&entry{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Hour)}).Error)
	}

	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	for pages := 0; pages < 5; pages++ {
		var rows []entry
		require.NoError(t, conn.Model(&entry{}).Scopes(Keyset(cursor, 2)).Find(&rows).Error)
		page := BuildPage(rows, 2, func(e entry) Cursor { return Cursor{CreatedAt: e.CreatedAt, ID: e.ID} })
		for _, e := range page.Items {
			assert.False(t, seen[e.ID])
			seen[e.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor, err = ParseCursor(page.NextCursor)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 5)
}

func TestParseCursorRejectsZeroCursor(t *testing.T) {
	_, err := ParseCursor(EncodeCursor(Cursor{}))
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
