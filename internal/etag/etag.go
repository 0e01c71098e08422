// Package etag derives change tokens from filesystem modification times.
//
// A token is the file's mtime rendered as seconds since the epoch with
// exactly nine fractional digits. It is cheap (one stat, no content read)
// and is used to detect whether a file changed since it was last observed.
// Tokens are opaque: only equality comparison is meaningful.
package etag

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ETag is an opaque change token for a single file.
type ETag string

const nanosPerSecond = int64(time.Second)

// FromPath derives the change token for the file at path. The stat error is
// returned unmodified so callers can match on fs.ErrNotExist and friends.
func FromPath(path string) (ETag, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return FromUnixNano(info.ModTime().UnixNano()), nil
}

// FromUnixNano renders an integer nanosecond timestamp as a token.
// Nanoseconds are converted to seconds-with-fraction first, so a timestamp
// produces the same token regardless of which representation carried it.
func FromUnixNano(ns int64) ETag {
	sign := ""
	if ns < 0 {
		sign = "-"
		ns = -ns
	}
	return ETag(fmt.Sprintf("%s%d.%09d", sign, ns/nanosPerSecond, ns%nanosPerSecond))
}

// FromSeconds renders a fractional-seconds timestamp as a token. This is
// the fallback representation for metadata sources that cannot report
// nanoseconds; when both forms are available the nanosecond one wins.
func FromSeconds(sec float64) ETag {
	return ETag(strconv.FormatFloat(sec, 'f', 9, 64))
}
