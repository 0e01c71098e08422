// Package scan walks a collection and derives a change token per file, so
// callers can compare two passes (or a pass against the journal) without
// reading any file content.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/openvdir/vdirsync/internal/etag"
)

// FileState is the observed state of one file in a pass.
type FileState struct {
	Path    string // relative to the collection root, forward slashes
	Size    int64
	ETag    etag.ETag
	ModTime time.Time
}

// Scanner derives per-file change tokens for a collection directory.
type Scanner struct {
	root   string
	ignore *IgnoreList
	mu     sync.Mutex
	last   map[string]*FileState
}

func NewScanner(root string) *Scanner {
	ignore := NewIgnoreList(root)
	ignore.Load()
	return &Scanner{
		root:   root,
		ignore: ignore,
		last:   make(map[string]*FileState),
	}
}

// Scan walks the collection and returns the state of every non-ignored
// file. Token derivation runs concurrently; entries from the previous pass
// are reused when size and mtime are unchanged. One stat per file, no
// content reads.
func (s *Scanner) Scan(ctx context.Context) (map[string]*FileState, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		rel = filepath.ToSlash(rel)
		if s.ignore.ShouldIgnore(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}

	prev := s.Last()
	states := make(map[string]*FileState, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			full := filepath.Join(s.root, filepath.FromSlash(rel))
			info, err := os.Stat(full)
			if err != nil {
				// Deleted mid-scan; it will show up as removed next pass.
				return nil
			}

			state, ok := prev[rel]
			if !ok || state.Size != info.Size() || !state.ModTime.Equal(info.ModTime()) {
				// New or modified, derive a fresh token.
				state = &FileState{
					Path:    rel,
					Size:    info.Size(),
					ETag:    etag.FromUnixNano(info.ModTime().UnixNano()),
					ModTime: info.ModTime(),
				}
			}

			mu.Lock()
			states[rel] = state
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = states
	s.mu.Unlock()

	return states, nil
}

// Last returns the result of the previous pass.
func (s *Scanner) Last() map[string]*FileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Diff is the outcome of comparing two passes.
type Diff struct {
	Added   []string
	Changed []string
	Removed []string
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// DiffTokens compares a previous token map against a fresh pass. Paths only
// in next are added, only in prev are removed; shared paths are changed
// when their tokens differ.
func DiffTokens(prev map[string]etag.ETag, next map[string]*FileState) Diff {
	prevSet := mapset.NewThreadUnsafeSetFromMapKeys(prev)
	nextSet := mapset.NewThreadUnsafeSetFromMapKeys(next)

	var diff Diff
	diff.Added = nextSet.Difference(prevSet).ToSlice()
	diff.Removed = prevSet.Difference(nextSet).ToSlice()
	for path := range prevSet.Intersect(nextSet).Iter() {
		if prev[path] != next[path].ETag {
			diff.Changed = append(diff.Changed, path)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Changed)
	sort.Strings(diff.Removed)
	return diff
}

// Tokens projects a pass down to its token map.
func Tokens(states map[string]*FileState) map[string]etag.ETag {
	tokens := make(map[string]etag.ETag, len(states))
	for path, state := range states {
		tokens[path] = state.ETag
	}
	return tokens
}
