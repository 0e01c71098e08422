package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned by CheckDir/CheckFile when the path is absent and
// create was not requested.
var ErrNotExist = errors.New("path does not exist")

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func EnsureDir(path string) error {
	// already exists
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// CheckDir verifies that path is a directory. With create set, missing
// directories (including parents) are created with mode 0750. A path that
// exists but is not a directory is always an error.
func CheckDir(path string, create bool) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	if create {
		return os.MkdirAll(path, 0o750)
	}
	return fmt.Errorf("directory %s: %w", path, ErrNotExist)
}

// CheckFile verifies that path is a regular file. With create set, the
// parent directories and an empty file are created as needed.
func CheckFile(path string, create bool) error {
	if err := CheckDir(filepath.Dir(path), create); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is not a file", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	if create {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	}
	return fmt.Errorf("file %s: %w", path, ErrNotExist)
}
