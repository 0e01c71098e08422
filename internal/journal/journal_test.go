package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdir/vdirsync/internal/etag"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, j.Open())
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalSetGet(t *testing.T) {
	j := openJournal(t)

	rec := &Record{
		Path:         "contacts/alice.vcf",
		ETag:         etag.ETag("1700000000.123456789"),
		Size:         42,
		LastModified: time.Now().Add(-time.Hour).Truncate(time.Millisecond),
	}
	require.NoError(t, j.Set(rec))

	got, err := j.Get(rec.Path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ETag, got.ETag)
	assert.Equal(t, rec.Size, got.Size)
	assert.True(t, rec.LastModified.Equal(got.LastModified))
}

func TestJournalGetUnknownPath(t *testing.T) {
	j := openJournal(t)

	got, err := j.Get("missing.ics")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJournalChanged(t *testing.T) {
	j := openJournal(t)

	path := "calendar/event.ics"
	tok := etag.ETag("1700000000.000000000")
	require.NoError(t, j.Set(&Record{Path: path, ETag: tok, Size: 3, LastModified: time.Now()}))

	changed, err := j.Changed(path, tok)
	require.NoError(t, err)
	assert.False(t, changed, "identical token must not count as changed")

	changed, err = j.Changed(path, etag.ETag("1700000001.000000000"))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = j.Changed("never/seen.ics", tok)
	require.NoError(t, err)
	assert.True(t, changed, "unknown paths count as changed")
}

func TestJournalDeleteAndCount(t *testing.T) {
	j := openJournal(t)

	for _, p := range []string{"a.ics", "b.ics", "c.ics"} {
		require.NoError(t, j.Set(&Record{Path: p, ETag: "1.000000000", LastModified: time.Now()}))
	}

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, j.Delete("b.ics"))

	paths, err := j.Paths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.ics", "c.ics"}, paths)

	all, err := j.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a.ics")
}

func TestJournalNotOpen(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "journal.db"))

	_, err := j.Get("a.ics")
	assert.ErrorIs(t, err, errNotOpen)

	_, err = j.Changed("a.ics", etag.ETag("1.000000000"))
	assert.ErrorIs(t, err, errNotOpen)

	err = j.Set(&Record{Path: "a.ics", ETag: "1.000000000", LastModified: time.Now()})
	assert.ErrorIs(t, err, errNotOpen)

	_, err = j.Paths()
	assert.ErrorIs(t, err, errNotOpen)

	_, err = j.All()
	assert.ErrorIs(t, err, errNotOpen)

	_, err = j.Count()
	assert.ErrorIs(t, err, errNotOpen)

	assert.ErrorIs(t, j.Delete("a.ics"), errNotOpen)
	assert.ErrorIs(t, j.Close(), errNotOpen)
}
