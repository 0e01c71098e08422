package etag

import (
	"fmt"
	"runtime"
)

// PendingFile is an open handle whose content is staged but not yet
// committed to its final path. *os.File satisfies it.
type PendingFile interface {
	Name() string
	Sync() error
}

// durability decides how far a pending write must be forced out before the
// modification time reported for its path can be trusted.
type durability interface {
	settle(f PendingFile) error
}

type flushOnly struct{}

func (flushOnly) settle(f PendingFile) error {
	if fl, ok := f.(interface{ Flush() error }); ok {
		return fl.Flush()
	}
	return nil
}

type flushAndSync struct{}

func (flushAndSync) settle(f PendingFile) error {
	if err := (flushOnly{}).settle(f); err != nil {
		return err
	}
	return f.Sync()
}

// Flushing alone yields a correct mtime on unix. Windows keeps metadata
// stale until the descriptor is fully synced.
var platformDurability = pickDurability(runtime.GOOS)

func pickDurability(goos string) durability {
	if goos == "windows" {
		return flushAndSync{}
	}
	return flushOnly{}
}

// FromPending derives the change token for a freshly written, still-open
// file. The intended pattern is: stage content to a temp file, capture the
// token here, then rename or link the temp file to its final name. Rename
// and link do not touch mtime, so the token stays valid at the final path
// with no second stat after the move — and it is captured strictly before
// any other writer could see the final path.
func FromPending(f PendingFile) (ETag, error) {
	return fromPending(f, platformDurability)
}

func fromPending(f PendingFile, d durability) (ETag, error) {
	if err := d.settle(f); err != nil {
		return "", fmt.Errorf("settle pending write %s: %w", f.Name(), err)
	}
	return FromPath(f.Name())
}
