package vdir

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/openvdir/vdirsync/internal/etag"
	"github.com/openvdir/vdirsync/internal/utils"
)

const (
	lockFileName = ".vdirsync.lock"
	tempPattern  = ".vdirsync.tmp.*"
)

// Storage is a collection directory bound to a file extension.
type Storage struct {
	root  string
	ext   string
	flock *flock.Flock
}

// NewStorage opens the collection at root. With create set, a missing
// directory is created; otherwise ErrCollectionNotFound is returned.
func NewStorage(root, ext string, create bool) (*Storage, error) {
	resolved, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolve collection path %s: %w", root, err)
	}

	if err := utils.CheckDir(resolved, create); err != nil {
		if errors.Is(err, utils.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, resolved)
		}
		return nil, err
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return &Storage{
		root:  resolved,
		ext:   ext,
		flock: flock.New(filepath.Join(resolved, lockFileName)),
	}, nil
}

// Root returns the resolved collection directory.
func (s *Storage) Root() string {
	return s.root
}

// Lock takes the collection lock so no other process stages writes here.
func (s *Storage) Lock() error {
	locked, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock collection %s: %w", s.root, err)
	}
	if !locked {
		return ErrStorageLocked
	}
	return nil
}

func (s *Storage) Unlock() error {
	return s.flock.Unlock()
}

// List returns a reference for every item file in the collection.
func (s *Storage) List() ([]ItemRef, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", s.root, err)
	}

	refs := make([]ItemRef, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !validHref(entry.Name(), s.ext) {
			continue
		}
		tok, err := etag.FromPath(filepath.Join(s.root, entry.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Deleted between readdir and stat.
				continue
			}
			return nil, err
		}
		refs = append(refs, ItemRef{Href: entry.Name(), ETag: tok})
	}
	return refs, nil
}

// Get reads an item and its current token.
func (s *Storage) Get(href string) (*Item, error) {
	path, err := s.itemPath(href)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, href)
		}
		return nil, fmt.Errorf("read item %s: %w", href, err)
	}

	tok, err := etag.FromPath(path)
	if err != nil {
		return nil, err
	}

	return &Item{Href: href, Raw: raw, ETag: tok}, nil
}

// Upload stores a new item and returns its href and token. An empty href
// gets a generated one. Existing items are never overwritten.
func (s *Storage) Upload(item *Item) (string, etag.ETag, error) {
	href := item.Href
	if href == "" {
		href = uuid.NewString() + s.ext
	}

	path, err := s.itemPath(href)
	if err != nil {
		return "", "", err
	}
	if utils.FileExists(path) {
		return "", "", fmt.Errorf("%w: %s", ErrAlreadyExists, href)
	}

	tok, err := s.commitItem(path, item.Raw)
	if err != nil {
		return "", "", err
	}

	slog.Debug("vdir upload", "href", href, "etag", tok)
	return href, tok, nil
}

// Update replaces an existing item if expected still matches its stored
// token, and returns the new token.
func (s *Storage) Update(href string, item *Item, expected etag.ETag) (etag.ETag, error) {
	path, err := s.itemPath(href)
	if err != nil {
		return "", err
	}

	if err := s.checkToken(href, path, expected); err != nil {
		return "", err
	}

	tok, err := s.commitItem(path, item.Raw)
	if err != nil {
		return "", err
	}

	slog.Debug("vdir update", "href", href, "etag", tok)
	return tok, nil
}

// Delete removes an item if expected still matches its stored token.
func (s *Storage) Delete(href string, expected etag.ETag) error {
	path, err := s.itemPath(href)
	if err != nil {
		return err
	}

	if err := s.checkToken(href, path, expected); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete item %s: %w", href, err)
	}

	slog.Debug("vdir delete", "href", href)
	return nil
}

func (s *Storage) itemPath(href string) (string, error) {
	if !validHref(href, s.ext) {
		return "", fmt.Errorf("invalid href %q", href)
	}
	return filepath.Join(s.root, href), nil
}

func (s *Storage) checkToken(href, path string, expected etag.ETag) error {
	current, err := etag.FromPath(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, href)
		}
		return err
	}
	if current != expected {
		return fmt.Errorf("%w: %s has %s, expected %s", ErrETagMismatch, href, current, expected)
	}
	return nil
}

// commitItem is the safe-write path: stage to a temp file in the collection,
// capture the token while the handle is open, then rename into place. The
// rename preserves mtime, so the captured token is the one a later stat of
// path reports.
func (s *Storage) commitItem(path string, raw []byte) (etag.ETag, error) {
	tmp, err := os.CreateTemp(s.root, tempPattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	tok, err := etag.FromPending(tmp)
	if err != nil {
		return "", err
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	committed = true
	return tok, nil
}
