package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	ignore "github.com/sabhiram/go-gitignore"
)

// skippedDirs never hold sources worth indexing.
var skippedDirs = []string{".git", ".vs", ".idea", "bin", "obj", "node_modules", "vendor", "testdata"}

type collectOptions struct {
	exts    []string
	exclude []string
	// skipTests drops Go _test.go files.
	skipTests bool
	// ownModule stops at directories that carry their own go.mod.
	ownModule bool
}

// collectFiles walks root and returns the matching files in lexical order.
// .gitignore at root is honoured when present.
func collectFiles(ctx context.Context, root string, opts collectOptions) ([]string, error) {
	gi := loadGitignore(root)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Debug().Err(walkErr).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			if slices.Contains(skippedDirs, d.Name()) || ignored(gi, rel+"/") || excluded(opts.exclude, rel) {
				return filepath.SkipDir
			}
			if opts.ownModule {
				if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !slices.Contains(opts.exts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		if opts.skipTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if ignored(gi, rel) || excluded(opts.exclude, rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

func ignored(gi *ignore.GitIgnore, rel string) bool {
	return gi != nil && gi.MatchesPath(rel)
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
