// Package vdir implements a filesystem item collection: one directory
// holding one item per file. Every write stages to a temp file, captures
// the change token while the handle is still open, then renames into place,
// so the returned token always matches what a later stat of the final path
// reports.
package vdir

import (
	"errors"
	"strings"

	"github.com/openvdir/vdirsync/internal/etag"
)

var (
	// ErrCollectionNotFound means the collection directory does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrNotFound means the item href does not exist in the collection.
	ErrNotFound = errors.New("item not found")
	// ErrAlreadyExists means an upload would overwrite an existing item.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrETagMismatch means the caller's token no longer matches the stored
	// item; someone else changed it since it was last observed.
	ErrETagMismatch = errors.New("etag mismatch")
	// ErrStorageLocked means another process holds the collection lock.
	ErrStorageLocked = errors.New("collection locked by another process")
)

// Item is a single stored item with its current change token.
type Item struct {
	Href string
	Raw  []byte
	ETag etag.ETag
}

// ItemRef identifies an item without its content.
type ItemRef struct {
	Href string
	ETag etag.ETag
}

// validHref rejects hrefs that would escape the collection directory.
func validHref(href, ext string) bool {
	if href == "" || strings.HasPrefix(href, ".") {
		return false
	}
	if strings.ContainsAny(href, `/\`) || strings.Contains(href, "..") {
		return false
	}
	return ext == "" || strings.HasSuffix(href, ext)
}
