package scan

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openvdir/vdirsync/internal/utils"
)

// IgnoreFileName holds extra ignore rules inside a collection, one gitignore
// pattern per line.
const IgnoreFileName = ".vdirsyncignore"

var defaultIgnoreLines = []string{
	// own artifacts
	IgnoreFileName,
	".vdirsync.lock",
	".vdirsync.tmp.*",
	// general excludes
	"*.tmp",
	"*.bak",
	"*.log",
	".git",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList filters scan candidates with gitignore-style rules.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus the collection's ignore file, if any.
func (l *IgnoreList) Load() {
	lines := defaultIgnoreLines

	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore reports whether the path (relative to the collection root)
// matches an ignore rule.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore == nil {
		l.Load()
	}
	return l.ignore.MatchesPath(relPath)
}
