package project

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
)

type msbuildItem struct {
	Include string `xml:"Include,attr"`
	Remove  string `xml:"Remove,attr"`
	Version string `xml:"Version,attr"`
	// Version may also be written as a child element.
	VersionElem string `xml:"Version"`
}

func (i msbuildItem) version() string {
	if i.Version != "" {
		return i.Version
	}
	return strings.TrimSpace(i.VersionElem)
}

type csprojFile struct {
	Sdk            string `xml:"Sdk,attr"`
	PropertyGroups []struct {
		AssemblyName              string `xml:"AssemblyName"`
		EnableDefaultCompileItems string `xml:"EnableDefaultCompileItems"`
	} `xml:"PropertyGroup"`
	ItemGroups []struct {
		Compile          []msbuildItem `xml:"Compile"`
		ProjectReference []msbuildItem `xml:"ProjectReference"`
		PackageReference []msbuildItem `xml:"PackageReference"`
	} `xml:"ItemGroup"`
}

func (f *csprojFile) assemblyName() string {
	for _, pg := range f.PropertyGroups {
		if pg.AssemblyName != "" {
			return strings.TrimSpace(pg.AssemblyName)
		}
	}
	return ""
}

func (f *csprojFile) defaultCompileItems() bool {
	if f.Sdk == "" {
		return false
	}
	for _, pg := range f.PropertyGroups {
		if strings.EqualFold(strings.TrimSpace(pg.EnableDefaultCompileItems), "false") {
			return false
		}
	}
	return true
}

func readCSProj(path string) (*csprojFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrParse, path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var f csprojFile
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrParse, path, err)
	}
	return &f, nil
}

// msbuildPath converts an MSBuild relative path to a slash-separated one.
func msbuildPath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
}

func loadCSProj(ctx context.Context, manifest string, opts Options) (*Project, error) {
	p, f, err := csprojSources(ctx, manifest, opts)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{manifest: true}
	p.References = append(p.References, projectReferences(ctx, p, f, visited, opts)...)

	nuget := opts.NuGetPackages
	if nuget == "" {
		nuget = defaultNuGetPackages()
	}
	for _, ig := range f.ItemGroups {
		for _, pkg := range ig.PackageReference {
			if pkg.Include == "" {
				continue
			}
			p.References = append(p.References, resolvePackage(ctx, p, nuget, pkg.Include, pkg.version()))
		}
	}
	return p, nil
}

// csprojSources reads a project and its compile items. SDK-style projects
// compile every .cs file under the project directory unless disabled.
func csprojSources(ctx context.Context, manifest string, opts Options) (*Project, *csprojFile, error) {
	f, err := readCSProj(manifest)
	if err != nil {
		return nil, nil, err
	}
	root := filepath.Dir(manifest)
	name := f.assemblyName()
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(manifest), filepath.Ext(manifest))
	}
	p := &Project{Name: name, Root: root, Manifest: manifest, Language: "csharp"}

	var removes []string
	var includes []string
	for _, ig := range f.ItemGroups {
		for _, c := range ig.Compile {
			if c.Remove != "" {
				removes = append(removes, msbuildPath(c.Remove))
			}
			if c.Include != "" {
				includes = append(includes, msbuildPath(c.Include))
			}
		}
	}

	var files []string
	if f.defaultCompileItems() {
		files, err = collectFiles(ctx, root, collectOptions{exts: []string{".cs"}, exclude: opts.Exclude})
		if err != nil {
			return nil, nil, err
		}
	}
	for _, inc := range includes {
		matches, err := doublestar.Glob(os.DirFS(root), inc)
		if err != nil {
			p.warn("invalid Compile Include %q: %v", inc, err)
			continue
		}
		for _, m := range matches {
			path := filepath.Join(root, filepath.FromSlash(m))
			if !slices.Contains(files, path) {
				files = append(files, path)
			}
		}
	}
	for _, path := range files {
		rel, _ := filepath.Rel(root, path)
		if !excluded(removes, filepath.ToSlash(rel)) {
			p.Files = append(p.Files, path)
		}
	}
	return p, f, nil
}

func projectReferences(ctx context.Context, p *Project, f *csprojFile, visited map[string]bool, opts Options) []Reference {
	var refs []Reference
	for _, ig := range f.ItemGroups {
		for _, pr := range ig.ProjectReference {
			if pr.Include == "" {
				continue
			}
			path := filepath.Clean(filepath.Join(filepath.Dir(p.Manifest), filepath.FromSlash(msbuildPath(pr.Include))))
			if visited[path] {
				continue
			}
			visited[path] = true

			ref, rf, err := csprojSources(ctx, path, opts)
			if err != nil {
				p.warn("project reference %s: %v", pr.Include, err)
				refs = append(refs, Reference{
					Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
					Kind: RefProject,
				})
				continue
			}
			log.Debug().Str("project", ref.Name).Int("files", len(ref.Files)).Msg("project reference resolved")
			refs = append(refs, Reference{Name: ref.Name, Kind: RefProject, Dir: ref.Root, Files: ref.Files})
			// Project references flow transitively.
			refs = append(refs, projectReferences(ctx, ref, rf, visited, opts)...)
			p.Diagnostics = append(p.Diagnostics, ref.Diagnostics...)
		}
	}
	return refs
}

func defaultNuGetPackages() string {
	if v := os.Getenv("NUGET_PACKAGES"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nuget", "packages")
}

// resolvePackage looks for C# sources shipped by a restored package, e.g.
// source-only packages under contentFiles/cs.
func resolvePackage(ctx context.Context, p *Project, nuget, id, version string) Reference {
	ref := Reference{Name: id, Kind: RefPackage, Version: version}
	if nuget == "" || version == "" {
		p.warn("package %s: version or packages folder unknown", id)
		return ref
	}
	dir := filepath.Join(nuget, strings.ToLower(id), strings.ToLower(version))
	if _, err := os.Stat(dir); err != nil {
		p.warn("package %s %s is not restored under %s", id, version, nuget)
		return ref
	}
	ref.Dir = dir
	files, err := collectFiles(ctx, dir, collectOptions{exts: []string{".cs"}})
	if err != nil {
		p.warn("package %s: %v", id, err)
		return ref
	}
	if len(files) == 0 {
		p.warn("package %s %s ships no C# sources", id, version)
	}
	ref.Files = files
	return ref
}
