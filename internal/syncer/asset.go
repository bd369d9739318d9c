package syncer

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/utils"
)

// LocalAsset is a file found under the build folder. Content is read on
// demand and never cached.
type LocalAsset struct {
	RelativePath string
	AbsolutePath string
	Size         int64
	Extension    string
	// Ignored marks an entry excluded by the ignore rules. Ignored
	// directories are not descended into.
	Ignored bool
	IsDir   bool
}

func (a *LocalAsset) Read() ([]byte, error) {
	data, err := os.ReadFile(a.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", errs.ErrLocalIO, a.RelativePath, err)
	}
	return data, nil
}

// NewLocalAsset stats a single file under root.
func NewLocalAsset(root, relPath string) (*LocalAsset, error) {
	norm := utils.NormPath(relPath)
	abs := filepath.Join(root, filepath.FromSlash(utils.MatchPath(norm)))

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", errs.ErrLocalIO, norm, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", errs.ErrLocalIO, norm)
	}
	return newAsset(norm, abs, info), nil
}

func newAsset(relPath, absPath string, info fs.FileInfo) *LocalAsset {
	return &LocalAsset{
		RelativePath: relPath,
		AbsolutePath: absPath,
		Size:         info.Size(),
		Extension:    strings.ToLower(filepath.Ext(absPath)),
	}
}

// Walk lists the regular files under root depth first, siblings in lexical
// order. Entries matched by the ignore rules are yielded with Ignored set;
// ignored directories are yielded once and pruned. A directory or file that
// cannot be read is yielded with its path and the error, and the walk goes on.
// The sequence can be ranged over again for a fresh walk.
func Walk(root string, matcher *ignore.Matcher) iter.Seq2[*LocalAsset, error] {
	if matcher == nil {
		matcher = ignore.New()
	}
	return func(yield func(*LocalAsset, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(nil, fmt.Errorf("%w: build folder: %w", errs.ErrInvalidConfiguration, err))
			return
		}
		if !info.IsDir() {
			yield(nil, fmt.Errorf("%w: build folder %s is not a directory", errs.ErrInvalidConfiguration, root))
			return
		}
		walkDir(root, root, matcher, yield)
	}
}

func walkDir(root, dir string, matcher *ignore.Matcher, yield func(*LocalAsset, error) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		rel, _ := filepath.Rel(root, dir)
		return yield(&LocalAsset{RelativePath: utils.NormPath(rel), AbsolutePath: dir, IsDir: true},
			fmt.Errorf("%w: read dir: %w", errs.ErrLocalIO, err))
	}

	for _, entry := range entries {
		abs := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		norm := utils.NormPath(rel)

		if entry.IsDir() {
			if matcher.ShouldIgnoreDir(norm) {
				if !yield(&LocalAsset{RelativePath: norm, AbsolutePath: abs, IsDir: true, Ignored: true}, nil) {
					return false
				}
				continue
			}
			if !walkDir(root, abs, matcher, yield) {
				return false
			}
			continue
		}

		if matcher.ShouldIgnore(norm) {
			if !yield(&LocalAsset{RelativePath: norm, AbsolutePath: abs, Ignored: true}, nil) {
				return false
			}
			continue
		}

		// symlinks are followed to files only, never into directories
		info, err := os.Stat(abs)
		if err != nil {
			if !yield(&LocalAsset{RelativePath: norm, AbsolutePath: abs}, fmt.Errorf("%w: stat: %w", errs.ErrLocalIO, err)) {
				return false
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		if !yield(newAsset(norm, abs, info), nil) {
			return false
		}
	}
	return true
}
