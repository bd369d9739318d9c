package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading ~ and returns the cleaned absolute path.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}

	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("home directory unknown")
		}
		path = home + rest
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// NormPath turns an OS relative path into the slash form used as resource key,
// always with a single leading slash: "assets\\app.js" -> "/assets/app.js".
func NormPath(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	if path == "." {
		path = ""
	}
	return "/" + path
}

// MatchPath strips the leading slash of a normalized path, which is the form
// gitignore-style and glob patterns are matched against.
func MatchPath(path string) string {
	return strings.TrimLeft(path, "/")
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func EnsureDir(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

// FileExists is true for anything at path that is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
