package vdir

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdir/vdirsync/internal/etag"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), ".ics", false)
	require.NoError(t, err)
	return s
}

func TestNewStorageMissingCollection(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := NewStorage(missing, ".ics", false)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	s, err := NewStorage(missing, ".ics", true)
	require.NoError(t, err)
	assert.DirExists(t, s.Root())
}

func TestUploadGetRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	href, tok, err := s.Upload(&Item{Href: "event.ics", Raw: []byte("BEGIN:VCALENDAR")})
	require.NoError(t, err)
	assert.Equal(t, "event.ics", href)
	assert.NotEmpty(t, tok)

	item, err := s.Get(href)
	require.NoError(t, err)
	assert.Equal(t, []byte("BEGIN:VCALENDAR"), item.Raw)
	assert.Equal(t, tok, item.ETag, "upload token must match a later stat")
}

func TestUploadGeneratesHref(t *testing.T) {
	s := newTestStorage(t)

	href, _, err := s.Upload(&Item{Raw: []byte("x")})
	require.NoError(t, err)
	assert.True(t, filepath.Ext(href) == ".ics")

	_, err = s.Get(href)
	assert.NoError(t, err)
}

func TestUploadRefusesOverwrite(t *testing.T) {
	s := newTestStorage(t)

	_, _, err := s.Upload(&Item{Href: "a.ics", Raw: []byte("one")})
	require.NoError(t, err)

	_, _, err = s.Upload(&Item{Href: "a.ics", Raw: []byte("two")})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdatePrecondition(t *testing.T) {
	s := newTestStorage(t)

	_, tok, err := s.Upload(&Item{Href: "a.ics", Raw: []byte("v1")})
	require.NoError(t, err)

	newTok, err := s.Update("a.ics", &Item{Raw: []byte("v2")}, tok)
	require.NoError(t, err)

	// The first token is stale now.
	_, err = s.Update("a.ics", &Item{Raw: []byte("v3")}, tok)
	if newTok != tok {
		assert.ErrorIs(t, err, ErrETagMismatch)
	}

	item, err := s.Get("a.ics")
	require.NoError(t, err)
	assert.Equal(t, newTok, item.ETag)
}

func TestUpdateMissingItem(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Update("ghost.ics", &Item{Raw: []byte("x")}, etag.ETag("1.000000000"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)

	_, tok, err := s.Upload(&Item{Href: "a.ics", Raw: []byte("v1")})
	require.NoError(t, err)

	require.NoError(t, s.Delete("a.ics", tok))

	_, err = s.Get("a.ics")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete("a.ics", tok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSkipsForeignFiles(t *testing.T) {
	s := newTestStorage(t)

	_, _, err := s.Upload(&Item{Href: "a.ics", Raw: []byte("a")})
	require.NoError(t, err)
	_, _, err = s.Upload(&Item{Href: "b.ics", Raw: []byte("b")})
	require.NoError(t, err)

	// Lock file and temp leftovers must not show up as items.
	require.NoError(t, s.Lock())
	defer s.Unlock()

	refs, err := s.List()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.NotEmpty(t, ref.ETag)
	}
}

func TestInvalidHrefs(t *testing.T) {
	s := newTestStorage(t)

	for _, href := range []string{"", "../escape.ics", "a/b.ics", ".hidden.ics", "plain.txt"} {
		_, err := s.Get(href)
		assert.Error(t, err, "href %q must be rejected", href)
	}
}

func TestStorageLock(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Lock())
	defer s.Unlock()
}
