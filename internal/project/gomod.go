package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"symscope/internal/apperr"
)

func loadGoMod(ctx context.Context, manifest string, opts Options) (*Project, error) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrParse, manifest, err)
	}
	f, err := modfile.Parse(manifest, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("%w: %s has no module directive", apperr.ErrParse, manifest)
	}

	root := filepath.Dir(manifest)
	p := &Project{Name: f.Module.Mod.Path, Root: root, Manifest: manifest, Language: "go"}
	p.Files, err = collectFiles(ctx, root, collectOptions{exts: []string{".go"}, exclude: opts.Exclude, ownModule: true})
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]module.Version, len(f.Replace))
	for _, r := range f.Replace {
		replaced[r.Old.Path] = r.New
	}

	modCache := opts.ModCache
	if modCache == "" {
		modCache = defaultModCache()
	}
	for _, req := range f.Require {
		if req.Indirect && !opts.IncludeIndirect {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.References = append(p.References, resolveModule(ctx, p, modCache, req.Mod, replaced))
	}
	return p, nil
}

// resolveModule finds the sources of a required module: a local replace
// target first, then vendor/, then the module cache.
func resolveModule(ctx context.Context, p *Project, modCache string, mod module.Version, replaced map[string]module.Version) Reference {
	ref := Reference{Name: mod.Path, Kind: RefModule, Version: mod.Version}

	var dir string
	if to, ok := replaced[mod.Path]; ok {
		if to.Version == "" {
			dir = to.Path
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(p.Root, dir)
			}
		} else {
			mod = to
		}
	}
	if dir == "" {
		vendored := filepath.Join(p.Root, "vendor", filepath.FromSlash(mod.Path))
		if isDir(vendored) {
			dir = vendored
		}
	}
	if dir == "" && modCache != "" {
		cached, err := moduleCacheDir(modCache, mod)
		if err != nil {
			p.warn("module %s: %v", mod.Path, err)
			return ref
		}
		dir = cached
	}
	if dir == "" || !isDir(dir) {
		p.warn("module %s %s is not downloaded", mod.Path, mod.Version)
		return ref
	}

	files, err := collectFiles(ctx, dir, collectOptions{exts: []string{".go"}, skipTests: true, ownModule: true})
	if err != nil {
		p.warn("module %s: %v", mod.Path, err)
		return ref
	}
	log.Debug().Str("module", mod.Path).Str("dir", dir).Int("files", len(files)).Msg("module resolved")
	ref.Dir, ref.Files = dir, files
	return ref
}

// moduleCacheDir returns GOMODCACHE/<escaped path>@<escaped version>.
func moduleCacheDir(modCache string, mod module.Version) (string, error) {
	escaped, err := module.EscapePath(mod.Path)
	if err != nil {
		return "", fmt.Errorf("escape module path: %w", err)
	}
	version, err := module.EscapeVersion(mod.Version)
	if err != nil {
		return "", fmt.Errorf("escape version: %w", err)
	}
	return filepath.Join(modCache, filepath.FromSlash(escaped)+"@"+version), nil
}

func defaultModCache() string {
	if v := os.Getenv("GOMODCACHE"); v != "" {
		return v
	}
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		gopath = filepath.Join(home, "go")
	}
	// GOPATH may list several entries; the first one holds the cache.
	if i := strings.IndexRune(gopath, os.PathListSeparator); i >= 0 {
		gopath = gopath[:i]
	}
	return filepath.Join(gopath, "pkg", "mod")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
