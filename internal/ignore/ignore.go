// Package ignore filters build artifacts with gitignore-style rules.
package ignore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/chunksync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnoreFile is looked up next to the project config.
const DefaultIgnoreFile = ".web4ignore"

var defaultIgnoreLines = []string{
	// chunksync
	".web4ignore",
	"*.tmp",
	// VCS / editors
	".git",
	".svn",
	".vscode",
	".idea",
	"*.swp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

type Matcher struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// New compiles the default rules followed by lines. Later lines win, so a
// `!pattern` in lines can re-include something a default rule excluded.
func New(lines ...string) *Matcher {
	all := make([]string, 0, len(defaultIgnoreLines)+len(lines))
	all = append(all, defaultIgnoreLines...)
	all = append(all, lines...)
	return &Matcher{
		ignore: gitignore.CompileIgnoreLines(all...),
		rules:  len(lines),
	}
}

// Load reads an ignore file. A missing file is not an error; only the
// default rules apply then.
func Load(path string) (*Matcher, error) {
	if path == "" || !utils.FileExists(path) {
		slog.Debug("ignore file not found, using defaults", "path", path)
		return New(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}

	m := New(lines...)
	slog.Info("loaded ignore file", "path", path, "rules", m.rules)
	return m, nil
}

// ShouldIgnore reports whether a build-relative path is excluded. Both
// "/assets/a.map" and "assets/a.map" forms are accepted.
func (m *Matcher) ShouldIgnore(relPath string) bool {
	p := utils.MatchPath(filepath.ToSlash(relPath))
	if p == "" {
		return false
	}
	return m.ignore.MatchesPath(p)
}

// ShouldIgnoreDir reports whether a directory should be pruned from traversal.
func (m *Matcher) ShouldIgnoreDir(relPath string) bool {
	p := utils.MatchPath(filepath.ToSlash(relPath))
	if p == "" {
		return false
	}
	return m.ignore.MatchesPath(p + "/")
}

// Rules returns the number of user rules on top of the defaults.
func (m *Matcher) Rules() int {
	return m.rules
}
